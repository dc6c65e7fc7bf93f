package repository

import (
	"errors"
	"time"

	"github.com/lifesaver/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type SessionRepository interface {
	Create(session *model.Session) error
	List() ([]model.Session, error)
	Get(id uint) (*model.Session, error)
	GetBySessionID(sessionID string) (*model.Session, error)
	Save(session *model.Session) error
	Delete(id uint) error
}

type SessionEventRepository interface {
	Append(event *model.SessionEvent) error
	GetBySession(sessionRowID uint) ([]model.SessionEvent, error)
	CountBySession(sessionRowID uint) (int64, error)
	DeleteBySession(sessionRowID uint) error
}

type HandoffReportRepository interface {
	Create(report *model.HandoffReport) error
	Get(id uint) (*model.HandoffReport, error)
	GetLatestBySession(sessionRowID uint) (*model.HandoffReport, error)
	Save(report *model.HandoffReport) error
	CleanupStuckReports(timeout time.Duration) (int64, error)
}
