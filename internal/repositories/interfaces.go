package repositories

import (
	"errors"
	"time"

	"github.com/campuslink/groupchat/internal/models"
)

// Storage-level sentinels. Services translate these into their own error
// taxonomy; handlers never see them directly.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// GroupStore is the authoritative record of groups, their members and their
// pending join requests. Implementations must make PromoteRequest atomic:
// concurrent promotions of the same (group, user) pair must yield exactly one
// success and ErrNotFound for the rest.
type GroupStore interface {
	CreateGroup(group *models.Group, creator *models.GroupMember) error
	GetGroup(groupID uint) (*models.Group, error)
	ListGroups() ([]models.Group, error)

	GetMember(groupID, userID uint) (*models.GroupMember, error)
	ListMembers(groupID uint) ([]models.GroupMember, error)
	RemoveMember(groupID, userID uint) error

	AddJoinRequest(req *models.JoinRequest) error
	GetJoinRequest(groupID, userID uint) (*models.JoinRequest, error)
	ListJoinRequests(groupID uint) ([]models.JoinRequest, error)
	RemoveJoinRequest(groupID, userID uint) error

	// PromoteRequest atomically deletes the pending request and inserts a
	// membership with role=member. Returns ErrNotFound if no request exists.
	PromoteRequest(groupID, userID uint, joinedAt time.Time) error
}

// MessageStore is the durable message history. Read side is the history
// fetch consumed by clients; write side is the ingest pipeline.
type MessageStore interface {
	CreateMessage(msg *models.Message) error
	ListGroupMessages(groupID uint) ([]models.Message, error)
}

// UserStore holds campus accounts for the identity provider.
type UserStore interface {
	CreateUser(user *models.User) error
	GetUserByID(userID uint) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
}
