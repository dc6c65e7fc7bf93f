package statemachine

import (
	"k8s.io/klog/v2"
)

// ReportStatus 定义交接报告任务的所有可能状态
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"   // 未运行（初始态/重置态）
	ReportStatusQueued    ReportStatus = "queued"    // 已入队等待
	ReportStatusRunning   ReportStatus = "running"   // 正在生成
	ReportStatusSucceeded ReportStatus = "succeeded" // 生成成功
	ReportStatusFailed    ReportStatus = "failed"    // 生成失败
)

// ReportTransition 定义报告状态迁移
type ReportTransition struct {
	From ReportStatus
	To   ReportStatus
}

// ReportStateMachine 报告状态机
type ReportStateMachine struct {
	allowedTransitions map[ReportTransition]bool
}

// NewReportStateMachine 创建新的报告状态机
func NewReportStateMachine() *ReportStateMachine {
	sm := &ReportStateMachine{
		allowedTransitions: make(map[ReportTransition]bool),
	}

	// pending -> queued -> running -> succeeded/failed
	// failed/succeeded -> pending（reset，重新生成）
	transitions := []ReportTransition{
		{ReportStatusPending, ReportStatusQueued},
		{ReportStatusQueued, ReportStatusRunning},
		{ReportStatusRunning, ReportStatusSucceeded},
		{ReportStatusRunning, ReportStatusFailed},

		{ReportStatusFailed, ReportStatusPending},
		{ReportStatusSucceeded, ReportStatusPending},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *ReportStateMachine) CanTransition(from, to ReportStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[ReportTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *ReportStateMachine) ValidateTransition(from, to ReportStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *ReportStateMachine) Transition(from, to ReportStatus, reportID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("报告状态迁移被拒绝: reportID=%d, %s -> %s, error=%v",
			reportID, from, to, err)
		return err
	}

	klog.V(6).Infof("报告状态迁移成功: reportID=%d, %s -> %s", reportID, from, to)
	return nil
}

// IsReportTerminal 判断报告状态是否为终止态
func IsReportTerminal(status ReportStatus) bool {
	return status == ReportStatusSucceeded || status == ReportStatusFailed
}
