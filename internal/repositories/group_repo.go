package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/campuslink/groupchat/internal/models"
)

// GroupRepository is the postgres-backed GroupStore.
type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) CreateGroup(group *models.Group, creator *models.GroupMember) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		creator.GroupID = group.ID
		return tx.Create(creator).Error
	})
}

func (r *GroupRepository) GetGroup(groupID uint) (*models.Group, error) {
	var group models.Group
	if err := r.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &group, nil
}

func (r *GroupRepository) ListGroups() ([]models.Group, error) {
	var groups []models.Group
	if err := r.db.Order("id asc").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *GroupRepository) GetMember(groupID, userID uint) (*models.GroupMember, error) {
	var member models.GroupMember
	err := r.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (r *GroupRepository) ListMembers(groupID uint) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.Where("group_id = ?", groupID).Order("joined_at asc, id asc").Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *GroupRepository) RemoveMember(groupID, userID uint) error {
	res := r.db.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GroupRepository) AddJoinRequest(req *models.JoinRequest) error {
	return r.db.Create(req).Error
}

func (r *GroupRepository) GetJoinRequest(groupID, userID uint) (*models.JoinRequest, error) {
	var req models.JoinRequest
	err := r.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *GroupRepository) ListJoinRequests(groupID uint) ([]models.JoinRequest, error) {
	var reqs []models.JoinRequest
	err := r.db.Where("group_id = ?", groupID).Order("created_at asc, id asc").Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *GroupRepository) RemoveJoinRequest(groupID, userID uint) error {
	res := r.db.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.JoinRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PromoteRequest deletes the pending request and inserts the membership in
// one transaction. The delete doubles as the idempotency guard: a second
// promotion of the same pair finds no row to delete and fails with
// ErrNotFound before touching group_members.
func (r *GroupRepository) PromoteRequest(groupID, userID uint, joinedAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.JoinRequest{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		member := &models.GroupMember{
			GroupID:  groupID,
			UserID:   userID,
			Role:     models.RoleMember,
			JoinedAt: joinedAt,
		}
		return tx.Create(member).Error
	})
}
