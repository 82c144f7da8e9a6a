package repositories

import (
	"sync"
	"time"

	"github.com/campuslink/groupchat/internal/models"
)

// MemoryStore is an in-memory implementation of GroupStore, MessageStore and
// UserStore. It backs unit tests and local development without postgres.
// All methods are safe for concurrent use; a single mutex covers the whole
// store, which also gives PromoteRequest its atomicity.
type MemoryStore struct {
	mu sync.Mutex

	nextGroupID  uint
	nextMemberID uint
	nextReqID    uint
	nextUserID   uint

	groups   map[uint]*models.Group
	members  map[uint][]*models.GroupMember // groupID -> insertion-ordered
	requests map[uint][]*models.JoinRequest // groupID -> insertion-ordered
	messages map[uint][]*models.Message     // groupID -> append-ordered
	users    map[uint]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:   make(map[uint]*models.Group),
		members:  make(map[uint][]*models.GroupMember),
		requests: make(map[uint][]*models.JoinRequest),
		messages: make(map[uint][]*models.Message),
		users:    make(map[uint]*models.User),
	}
}

func (s *MemoryStore) CreateGroup(group *models.Group, creator *models.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGroupID++
	group.ID = s.nextGroupID
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	g := *group
	s.groups[group.ID] = &g

	s.nextMemberID++
	creator.ID = s.nextMemberID
	creator.GroupID = group.ID
	m := *creator
	s.members[group.ID] = append(s.members[group.ID], &m)
	return nil
}

func (s *MemoryStore) GetGroup(groupID uint) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *g
	return &out, nil
}

func (s *MemoryStore) ListGroups() ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Group, 0, len(s.groups))
	for id := uint(1); id <= s.nextGroupID; id++ {
		if g, ok := s.groups[id]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetMember(groupID, userID uint) (*models.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.members[groupID] {
		if m.UserID == userID {
			out := *m
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListMembers(groupID uint) ([]models.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.members[groupID]
	out := make([]models.GroupMember, 0, len(ms))
	for _, m := range ms {
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) RemoveMember(groupID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeMemberLocked(groupID, userID)
}

func (s *MemoryStore) removeMemberLocked(groupID, userID uint) error {
	ms := s.members[groupID]
	for i, m := range ms {
		if m.UserID == userID {
			s.members[groupID] = append(ms[:i:i], ms[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) AddJoinRequest(req *models.JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextReqID++
	req.ID = s.nextReqID
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	r := *req
	s.requests[req.GroupID] = append(s.requests[req.GroupID], &r)
	return nil
}

func (s *MemoryStore) GetJoinRequest(groupID, userID uint) (*models.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.requests[groupID] {
		if r.UserID == userID {
			out := *r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListJoinRequests(groupID uint) ([]models.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.requests[groupID]
	out := make([]models.JoinRequest, 0, len(rs))
	for _, r := range rs {
		out = append(out, *r)
	}
	return out, nil
}

func (s *MemoryStore) RemoveJoinRequest(groupID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeRequestLocked(groupID, userID)
}

func (s *MemoryStore) removeRequestLocked(groupID, userID uint) error {
	rs := s.requests[groupID]
	for i, r := range rs {
		if r.UserID == userID {
			s.requests[groupID] = append(rs[:i:i], rs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) PromoteRequest(groupID, userID uint, joinedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.removeRequestLocked(groupID, userID); err != nil {
		return err
	}
	s.nextMemberID++
	s.members[groupID] = append(s.members[groupID], &models.GroupMember{
		ID:       s.nextMemberID,
		GroupID:  groupID,
		UserID:   userID,
		Role:     models.RoleMember,
		JoinedAt: joinedAt,
	})
	return nil
}

func (s *MemoryStore) CreateMessage(msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := *msg
	s.messages[msg.GroupID] = append(s.messages[msg.GroupID], &m)
	return nil
}

func (s *MemoryStore) ListGroupMessages(groupID uint) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.messages[groupID]
	out := make([]models.Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) CreateUser(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return ErrDuplicate
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	u := *user
	s.users[user.ID] = &u
	return nil
}

func (s *MemoryStore) GetUserByID(userID uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUserByUsername(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
