package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/services"
)

// GroupHandler serves group CRUD, the membership roster and the
// join-request workflow.
type GroupHandler struct {
	membership *services.MembershipService
	log        *logger.Logger
}

func NewGroupHandler(membership *services.MembershipService, log *logger.Logger) *GroupHandler {
	return &GroupHandler{membership: membership, log: log}
}

func pathID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(id), nil
}

// CreateGroup creates a group with the caller as its sole admin.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req services.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	group, err := h.membership.CreateGroup(userID, &req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, group)
}

// ListJoinable lists public groups the caller does not belong to.
func (h *GroupHandler) ListJoinable(c *gin.Context) {
	groups, err := h.membership.ListJoinable(c.GetUint("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, groups)
}

// ListMine lists the caller's groups.
func (h *GroupHandler) ListMine(c *gin.Context) {
	groups, err := h.membership.ListMine(c.GetUint("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, groups)
}

// ListMembers returns the roster. Members only.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	members, err := h.membership.ListMembers(groupID, c.GetUint("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, members)
}

// RequestJoin files a join request for the caller.
func (h *GroupHandler) RequestJoin(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	userID := c.GetUint("user_id")
	if err := h.membership.RequestJoin(groupID, userID); err != nil {
		failErr(c, err)
		return
	}
	h.log.Info("join requested", zap.Uint("group_id", groupID), zap.Uint("user_id", userID))
	ok(c, nil)
}

// WithdrawRequest cancels the caller's own pending request.
func (h *GroupHandler) WithdrawRequest(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.membership.WithdrawRequest(groupID, c.GetUint("user_id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

// PendingRequests lists the group's pending queue. Admins only.
func (h *GroupHandler) PendingRequests(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	reqs, err := h.membership.PendingRequests(groupID, c.GetUint("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, reqs)
}

// AcceptRequest promotes a pending requester to member. Admins only.
func (h *GroupHandler) AcceptRequest(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	targetID, err := pathID(c, "user_id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	adminID := c.GetUint("user_id")
	if err := h.membership.AcceptRequest(groupID, adminID, targetID); err != nil {
		failErr(c, err)
		return
	}
	h.log.Info("join request accepted",
		zap.Uint("group_id", groupID), zap.Uint("admin_id", adminID), zap.Uint("user_id", targetID))
	ok(c, nil)
}

// RejectRequest drops a pending request without granting membership.
// Admins only.
func (h *GroupHandler) RejectRequest(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	targetID, err := pathID(c, "user_id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.membership.RejectRequest(groupID, c.GetUint("user_id"), targetID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

// Leave removes the caller's own membership.
func (h *GroupHandler) Leave(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.membership.Leave(groupID, c.GetUint("user_id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

// RemoveMember evicts a member. Admins only.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	targetID, err := pathID(c, "user_id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	adminID := c.GetUint("user_id")
	if err := h.membership.RemoveMember(groupID, adminID, targetID); err != nil {
		failErr(c, err)
		return
	}
	h.log.Info("member removed",
		zap.Uint("group_id", groupID), zap.Uint("admin_id", adminID), zap.Uint("user_id", targetID))
	ok(c, nil)
}
