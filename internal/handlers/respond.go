package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/groupchat/internal/services"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}

// statusFor maps service sentinels to HTTP statuses. Unknown errors are
// internal; service internals never leak through the error body because
// sentinels carry fixed text.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrNotAdmin),
		errors.Is(err, services.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, services.ErrNoSuchRequest):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrAlreadyRequested),
		errors.Is(err, services.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidGroupName),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrInvalidUsername),
		errors.Is(err, services.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err)
}
