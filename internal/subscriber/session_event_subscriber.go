package subscriber

import (
	"context"
	"fmt"

	"github.com/lifesaver/backend/internal/eventbus"
	"github.com/lifesaver/backend/internal/model"
	"github.com/lifesaver/backend/internal/repository"
	"k8s.io/klog/v2"
)

// SessionEventSubscriber 监听会话完成事件，触发交接报告后台生成
type SessionEventSubscriber struct {
	handoffService handoffService
	sessionRepo    repository.SessionRepository
}

type handoffService interface {
	CreateForSession(session *model.Session) (*model.HandoffReport, error)
}

func NewSessionEventSubscriber(handoffSvc handoffService, sessionRepo repository.SessionRepository) *SessionEventSubscriber {
	return &SessionEventSubscriber{handoffService: handoffSvc, sessionRepo: sessionRepo}
}

func (s *SessionEventSubscriber) Register(bus *eventbus.SessionEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.SessionEventCompleted, s.handleCompleted)
}

func (s *SessionEventSubscriber) handleCompleted(ctx context.Context, event eventbus.SessionEvent) error {
	if event.SessionRowID == 0 {
		return fmt.Errorf("会话ID为空")
	}
	session, err := s.sessionRepo.Get(event.SessionRowID)
	if err != nil {
		klog.Errorf("会话事件处理失败: type=%s, sessionID=%s, error=%v", event.Type, event.SessionID, err)
		return err
	}
	report, err := s.handoffService.CreateForSession(session)
	if err != nil {
		klog.Errorf("会话事件处理失败: type=%s, sessionID=%s, error=%v", event.Type, event.SessionID, err)
		return err
	}
	klog.V(6).Infof("会话事件处理成功: type=%s, sessionID=%s, reportID=%d", event.Type, event.SessionID, report.ID)
	return nil
}
