package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/repositories"
	"github.com/campuslink/groupchat/internal/utils"
)

// groupLocks hands out one mutex per group so that accept/remove/leave on a
// single group are serialized while different groups proceed in parallel.
type groupLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newGroupLocks() *groupLocks {
	return &groupLocks{locks: make(map[uint]*sync.Mutex)}
}

func (l *groupLocks) get(groupID uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[groupID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[groupID] = m
	}
	return m
}

// MembershipService is the authoritative membership store and the
// join-request workflow. Every operation re-reads stored state; client-side
// membership claims are never trusted.
type MembershipService struct {
	store repositories.GroupStore
	pool  *utils.WorkerPool
	log   *logger.Logger
	locks *groupLocks
}

func NewMembershipService(store repositories.GroupStore, pool *utils.WorkerPool, log *logger.Logger) *MembershipService {
	return &MembershipService{
		store: store,
		pool:  pool,
		log:   log,
		locks: newGroupLocks(),
	}
}

type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

type GroupDTO struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Visibility  string    `json:"visibility"`
	CreatorID   uint      `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type MemberDTO struct {
	UserID   uint      `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type JoinRequestDTO struct {
	RequestID string    `json:"request_id"`
	UserID    uint      `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func groupDTO(g *models.Group) *GroupDTO {
	return &GroupDTO{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Visibility:  g.Visibility,
		CreatorID:   g.CreatorID,
		CreatedAt:   g.CreatedAt,
	}
}

// CreateGroup creates a group with the caller as its sole admin member.
func (s *MembershipService) CreateGroup(userID uint, req *CreateGroupRequest) (*GroupDTO, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if len(req.Name) < 1 || len(req.Name) > 50 {
		return nil, ErrInvalidGroupName
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if visibility != models.VisibilityPublic && visibility != models.VisibilityPrivate {
		return nil, errors.New("visibility must be public or private")
	}

	now := time.Now()
	group := &models.Group{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  visibility,
		CreatorID:   userID,
		CreatedAt:   now,
	}
	creator := &models.GroupMember{
		UserID:   userID,
		Role:     models.RoleAdmin,
		JoinedAt: now,
	}
	if err := s.store.CreateGroup(group, creator); err != nil {
		return nil, err
	}
	return groupDTO(group), nil
}

// IsMember reports whether userID is a current member of the group. A zero
// user is never a member.
func (s *MembershipService) IsMember(groupID, userID uint) bool {
	if userID == 0 {
		return false
	}
	_, err := s.store.GetMember(groupID, userID)
	return err == nil
}

// IsAdmin reports whether userID is a current member with the admin role.
func (s *MembershipService) IsAdmin(groupID, userID uint) bool {
	if userID == 0 {
		return false
	}
	m, err := s.store.GetMember(groupID, userID)
	return err == nil && m.Role == models.RoleAdmin
}

// RequestJoin puts the user on the group's pending queue. Public and private
// groups route through the same request path.
func (s *MembershipService) RequestJoin(groupID, userID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	lock := s.locks.get(groupID)
	lock.Lock()
	defer lock.Unlock()

	group, err := s.store.GetGroup(groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrGroupNotFound
		}
		return err
	}
	if _, err := s.store.GetMember(groupID, userID); err == nil {
		return ErrAlreadyMember
	}
	if _, err := s.store.GetJoinRequest(groupID, userID); err == nil {
		return ErrAlreadyRequested
	}

	req := &models.JoinRequest{
		RequestID: uuid.NewString(),
		GroupID:   groupID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.store.AddJoinRequest(req); err != nil {
		return err
	}
	s.notifyAdmins(group, userID)
	return nil
}

// notifyAdmins fans out a best-effort notification about a new join request.
// Delivery beyond logging is an external concern.
func (s *MembershipService) notifyAdmins(group *models.Group, requesterID uint) {
	if s.pool == nil {
		return
	}
	groupID := group.ID
	s.pool.Submit(func() {
		members, err := s.store.ListMembers(groupID)
		if err != nil {
			s.log.Warn("failed to list admins for join notification",
				zap.Uint("group_id", groupID), zap.Error(err))
			return
		}
		for _, m := range members {
			if m.Role == models.RoleAdmin {
				s.log.Info("join request awaiting review",
					zap.Uint("group_id", groupID),
					zap.Uint("admin_id", m.UserID),
					zap.Uint("requester_id", requesterID))
			}
		}
	})
}

// AcceptRequest moves the user from pending to member. It is serialized per
// group; a concurrent or repeated accept of the same user fails with
// ErrNoSuchRequest instead of duplicating the membership.
func (s *MembershipService) AcceptRequest(groupID, adminID, userID uint) error {
	if adminID == 0 {
		return ErrUnauthenticated
	}
	lock := s.locks.get(groupID)
	lock.Lock()
	defer lock.Unlock()

	if !s.IsAdmin(groupID, adminID) {
		return ErrNotAdmin
	}
	err := s.store.PromoteRequest(groupID, userID, time.Now())
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNoSuchRequest
	}
	return err
}

// RejectRequest removes the user's pending request without admitting them.
func (s *MembershipService) RejectRequest(groupID, adminID, userID uint) error {
	if adminID == 0 {
		return ErrUnauthenticated
	}
	lock := s.locks.get(groupID)
	lock.Lock()
	defer lock.Unlock()

	if !s.IsAdmin(groupID, adminID) {
		return ErrNotAdmin
	}
	err := s.store.RemoveJoinRequest(groupID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNoSuchRequest
	}
	return err
}

// WithdrawRequest lets a requester take back their own pending request.
func (s *MembershipService) WithdrawRequest(groupID, userID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	lock := s.locks.get(groupID)
	lock.Lock()
	defer lock.Unlock()

	err := s.store.RemoveJoinRequest(groupID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNoSuchRequest
	}
	return err
}

// Leave removes the caller from the group. If the last admin leaves while
// other members remain, the group stays admin-less; nobody is promoted.
func (s *MembershipService) Leave(groupID, userID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	lock := s.locks.get(groupID)
	lock.Lock()
	defer lock.Unlock()

	err := s.store.RemoveMember(groupID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotMember
	}
	return err
}

// RemoveMember lets an admin remove any member, other admins included.
func (s *MembershipService) RemoveMember(groupID, adminID, targetID uint) error {
	if adminID == 0 {
		return ErrUnauthenticated
	}
	lock := s.locks.get(groupID)
	lock.Lock()
	defer lock.Unlock()

	if !s.IsAdmin(groupID, adminID) {
		return ErrNotAdmin
	}
	err := s.store.RemoveMember(groupID, targetID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotMember
	}
	return err
}

// ListJoinable returns public groups the user is not a member of.
func (s *MembershipService) ListJoinable(userID uint) ([]GroupDTO, error) {
	groups, err := s.store.ListGroups()
	if err != nil {
		return nil, err
	}
	out := make([]GroupDTO, 0)
	for i := range groups {
		g := &groups[i]
		if g.Visibility != models.VisibilityPublic {
			continue
		}
		if s.IsMember(g.ID, userID) {
			continue
		}
		out = append(out, *groupDTO(g))
	}
	return out, nil
}

// ListMine returns the groups the user is currently a member of.
func (s *MembershipService) ListMine(userID uint) ([]GroupDTO, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	groups, err := s.store.ListGroups()
	if err != nil {
		return nil, err
	}
	out := make([]GroupDTO, 0)
	for i := range groups {
		g := &groups[i]
		if s.IsMember(g.ID, userID) {
			out = append(out, *groupDTO(g))
		}
	}
	return out, nil
}

// ListMembers is the admin-or-member view of the group roster.
func (s *MembershipService) ListMembers(groupID, userID uint) ([]MemberDTO, error) {
	if !s.IsMember(groupID, userID) {
		return nil, ErrNotMember
	}
	members, err := s.store.ListMembers(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, MemberDTO{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return out, nil
}

// PendingRequests returns the insertion-ordered join queue; admins only.
func (s *MembershipService) PendingRequests(groupID, adminID uint) ([]JoinRequestDTO, error) {
	if adminID == 0 {
		return nil, ErrUnauthenticated
	}
	if !s.IsAdmin(groupID, adminID) {
		return nil, ErrNotAdmin
	}
	reqs, err := s.store.ListJoinRequests(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]JoinRequestDTO, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, JoinRequestDTO{RequestID: r.RequestID, UserID: r.UserID, CreatedAt: r.CreatedAt})
	}
	return out, nil
}
