package models

import (
	"time"
)

// Group visibility. Private groups are hidden from the browse list but the
// join path is identical: everybody goes through a join request.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Member roles within a group.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Group is a campus group. The creator becomes the sole admin member at
// creation time. Groups are never hard-deleted.
type Group struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:50;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	Visibility  string    `gorm:"size:10;default:public" json:"visibility"`
	CreatorID   uint      `gorm:"not null" json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

// GroupMember links a user to a group with a role. A user appears at most
// once per group, enforced by the composite unique index.
type GroupMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GroupID  uint      `gorm:"not null;uniqueIndex:idx_group_user" json:"group_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_group_user" json:"user_id"`
	Role     string    `gorm:"size:10;default:member" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func (GroupMember) TableName() string {
	return "group_members"
}
