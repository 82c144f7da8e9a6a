package repositories

import (
	"gorm.io/gorm"

	"github.com/campuslink/groupchat/internal/models"
)

// MessageRepository is the postgres-backed MessageStore. Snowflake IDs are
// time-ordered, so ordering by id gives chronological history.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) CreateMessage(msg *models.Message) error {
	return r.db.Create(msg).Error
}

func (r *MessageRepository) ListGroupMessages(groupID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.Where("group_id = ?", groupID).Order("id asc").Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
