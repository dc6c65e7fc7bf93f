package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// SessionStatus 定义急救会话的所有可能状态
type SessionStatus string

const (
	SessionStatusUnstarted  SessionStatus = "unstarted"   // 已创建未分诊
	SessionStatusTriaged    SessionStatus = "triaged"     // 分诊完成，流程已绑定
	SessionStatusInProgress SessionStatus = "in_progress" // 逐步指导中
	SessionStatusComplete   SessionStatus = "complete"    // 已到最后一步
)

// SessionTransition 定义会话状态迁移
type SessionTransition struct {
	From SessionStatus
	To   SessionStatus
}

// SessionStateMachine 会话状态机
type SessionStateMachine struct {
	allowedTransitions map[SessionTransition]bool
}

// NewSessionStateMachine 创建新的会话状态机
func NewSessionStateMachine() *SessionStateMachine {
	sm := &SessionStateMachine{
		allowedTransitions: make(map[SessionTransition]bool),
	}

	// 合法的状态迁移路径
	// unstarted -> triaged -> in_progress -> complete
	// triaged -> complete（单步流程首次推进即到最后一步）
	// in_progress/complete -> triaged（重新分诊）
	transitions := []SessionTransition{
		{SessionStatusUnstarted, SessionStatusTriaged},
		{SessionStatusTriaged, SessionStatusInProgress},
		{SessionStatusTriaged, SessionStatusComplete},
		{SessionStatusInProgress, SessionStatusComplete},

		// 重新分诊流程
		{SessionStatusInProgress, SessionStatusTriaged},
		{SessionStatusComplete, SessionStatusTriaged},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *SessionStateMachine) CanTransition(from, to SessionStatus) bool {
	if from == to {
		return false // 不允许状态不变
	}
	return sm.allowedTransitions[SessionTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *SessionStateMachine) ValidateTransition(from, to SessionStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *SessionStateMachine) Transition(from, to SessionStatus, sessionID string) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("会话状态迁移被拒绝: sessionID=%s, %s -> %s, error=%v",
			sessionID, from, to, err)
		return err
	}

	klog.V(6).Infof("会话状态迁移成功: sessionID=%s, %s -> %s", sessionID, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// IsGuiding 判断会话是否处于指导阶段（分诊完成后）
func IsGuiding(status SessionStatus) bool {
	return status == SessionStatusTriaged || status == SessionStatusInProgress
}
