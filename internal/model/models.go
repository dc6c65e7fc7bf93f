package model

import (
	"time"
)

// Session 一次急救会话
// EmergencyType 与 ProtocolKey 要么同时为空（未分诊），要么同时有值
type Session struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	SessionID        string         `json:"session_id" gorm:"size:64;uniqueIndex;not null"`
	EmergencyType    string         `json:"emergency_type" gorm:"size:64"`
	ProtocolKey      string         `json:"protocol_key" gorm:"size:64"`
	CurrentStepIndex int            `json:"current_step_index" gorm:"default:0"`
	Done             bool           `json:"done" gorm:"default:false"`
	Status           string         `json:"status" gorm:"size:50;default:unstarted"` // unstarted, triaged, in_progress, complete
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Events           []SessionEvent `json:"events,omitempty" gorm:"foreignKey:SessionRowID"`
}

// SessionEvent 会话事件日志（追加写，Seq 按产生顺序递增）
type SessionEvent struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SessionRowID uint      `json:"session_row_id" gorm:"index;not null"`
	Seq          int       `json:"seq" gorm:"not null"`
	Kind         string    `json:"kind" gorm:"size:50;not null"`
	Payload      string    `json:"payload" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
}

// 事件类型（闭集，顺序即会话时间线）
const (
	EventUserMessage        = "user_message"
	EventTriageOutputRaw    = "triage_output_raw"
	EventTriageOutputParsed = "triage_output_parsed"
	EventProtocolLookup     = "protocol_lookup"
	EventUserUpdate         = "user_update"
	EventInstructionOutput  = "instruction_output_raw"
	EventCalmingOutput      = "calming_output_raw"
	EventEMTReport          = "emt_report"
)

// HandoffReport 交接报告任务
// 会话完成后由后台生成，也可通过同步接口直接生成
type HandoffReport struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	SessionRowID uint       `json:"session_row_id" gorm:"index;not null"`
	SessionID    string     `json:"session_id" gorm:"size:64;index"`
	Status       string     `json:"status" gorm:"size:50;default:pending"` // pending, queued, running, succeeded, failed
	Content      string     `json:"content" gorm:"type:text"`
	ErrorMsg     string     `json:"error_msg" gorm:"size:1000"`
	StartedAt    *time.Time `json:"started_at" gorm:"column:started_at"`
	CompletedAt  *time.Time `json:"completed_at" gorm:"column:completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
