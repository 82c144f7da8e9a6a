package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/services"
	"github.com/campuslink/groupchat/middleware/jwt"
)

// AuthHandler serves account registration, login, and token refresh.
type AuthHandler struct {
	auth   *services.AuthService
	tokens *jwt.TokenManager
	log    *logger.Logger
}

func NewAuthHandler(auth *services.AuthService, tokens *jwt.TokenManager, log *logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, log: log}
}

// Register creates an account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	user, err := h.auth.Register(&req)
	if err != nil {
		h.log.Warn("register failed", zap.String("username", req.Username), zap.Error(err))
		failErr(c, err)
		return
	}

	ok(c, gin.H{
		"user_id":      user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
	})
}

// Login exchanges credentials for a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	resp, err := h.auth.Login(&req)
	if err != nil {
		h.log.Warn("login failed", zap.String("username", req.Username), zap.Error(err))
		failErr(c, err)
		return
	}

	ok(c, resp)
}

// Refresh exchanges a token nearing (or just past) expiry for a fresh one.
// The current token travels in the Authorization header, same as any
// authenticated call.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var token string
	if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
		token = parts[1]
	}
	if token == "" {
		fail(c, http.StatusUnauthorized, jwt.ErrInvalidToken)
		return
	}

	refreshed, err := h.tokens.RefreshToken(token)
	if err != nil {
		h.log.Warn("token refresh rejected", zap.Error(err))
		fail(c, http.StatusUnauthorized, err)
		return
	}

	ok(c, gin.H{"token": refreshed})
}
