package repository

import (
	"github.com/lifesaver/backend/internal/model"
	"gorm.io/gorm"
)

type sessionEventRepository struct {
	db *gorm.DB
}

func NewSessionEventRepository(db *gorm.DB) SessionEventRepository {
	return &sessionEventRepository{db: db}
}

// Append 追加一条会话事件
// Seq 在事务内按会话递增分配，保证与调用顺序一致
func (r *sessionEventRepository) Append(event *model.SessionEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&model.SessionEvent{}).
			Where("session_row_id = ?", event.SessionRowID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		event.Seq = int(maxSeq) + 1
		return tx.Create(event).Error
	})
}

func (r *sessionEventRepository) GetBySession(sessionRowID uint) ([]model.SessionEvent, error) {
	var events []model.SessionEvent
	err := r.db.Where("session_row_id = ?", sessionRowID).Order("seq").Find(&events).Error
	return events, err
}

func (r *sessionEventRepository) CountBySession(sessionRowID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.SessionEvent{}).Where("session_row_id = ?", sessionRowID).Count(&count).Error
	return count, err
}

func (r *sessionEventRepository) DeleteBySession(sessionRowID uint) error {
	return r.db.Where("session_row_id = ?", sessionRowID).Delete(&model.SessionEvent{}).Error
}
