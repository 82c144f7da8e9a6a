package models

import (
	"time"
)

// Message is an immutable chat message owned by a group. The ID is a
// snowflake assigned on the server send path, so history order and live
// delivery order agree and clients can deduplicate by ID.
type Message struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	GroupID    uint      `gorm:"not null;index" json:"group_id"`
	SenderID   uint      `gorm:"not null" json:"sender_id"`
	SenderName string    `gorm:"size:64" json:"sender_name"`
	Content    string    `gorm:"size:2000;not null" json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
