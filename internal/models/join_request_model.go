package models

import (
	"time"
)

// JoinRequest is a user's pending request to join a group. A user has at
// most one live request per group, and never a request and a membership at
// the same time; the membership service maintains that invariant.
//
// Requests are resolved by an admin accept or reject, or withdrawn by the
// requester. Resolution deletes the row, so the table only ever holds the
// pending queue, insertion-ordered by CreatedAt.
type JoinRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID string    `gorm:"size:36;uniqueIndex" json:"request_id"`
	GroupID   uint      `gorm:"not null;uniqueIndex:idx_group_requester" json:"group_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_group_requester" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (JoinRequest) TableName() string {
	return "join_requests"
}
