package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/lifesaver/backend/internal/model"
	"gorm.io/gorm"
)

type handoffReportRepository struct {
	db *gorm.DB
}

func NewHandoffReportRepository(db *gorm.DB) HandoffReportRepository {
	return &handoffReportRepository{db: db}
}

func (r *handoffReportRepository) Create(report *model.HandoffReport) error {
	return r.db.Create(report).Error
}

func (r *handoffReportRepository) Get(id uint) (*model.HandoffReport, error) {
	var report model.HandoffReport
	err := r.db.First(&report, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

func (r *handoffReportRepository) GetLatestBySession(sessionRowID uint) (*model.HandoffReport, error) {
	var report model.HandoffReport
	err := r.db.Where("session_row_id = ?", sessionRowID).Order("created_at desc").First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

func (r *handoffReportRepository) Save(report *model.HandoffReport) error {
	return r.db.Save(report).Error
}

// CleanupStuckReports 清理卡住的running报告（超过指定时间仍未完成）
// 用于服务重启后恢复
func (r *handoffReportRepository) CleanupStuckReports(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result := r.db.Model(&model.HandoffReport{}).
		Where("status = ? AND started_at < ?", "running", cutoff).
		Updates(map[string]interface{}{
			"status":    "failed",
			"error_msg": fmt.Sprintf("报告生成超时（超过 %v），已自动标记为失败", timeout),
		})
	return result.RowsAffected, result.Error
}
