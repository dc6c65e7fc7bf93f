package subscriber

import (
	"context"
	"testing"

	"github.com/lifesaver/backend/internal/eventbus"
	"github.com/lifesaver/backend/internal/model"
	"github.com/lifesaver/backend/internal/repository"
)

type mockHandoffService struct {
	createCalled int
	lastSession  *model.Session
}

func (m *mockHandoffService) CreateForSession(session *model.Session) (*model.HandoffReport, error) {
	m.createCalled++
	m.lastSession = session
	return &model.HandoffReport{ID: 1, SessionRowID: session.ID, SessionID: session.SessionID}, nil
}

type mockSessionRepo struct {
	sessions map[uint]*model.Session
}

func (m *mockSessionRepo) Create(session *model.Session) error { return nil }
func (m *mockSessionRepo) List() ([]model.Session, error)      { return nil, nil }
func (m *mockSessionRepo) Get(id uint) (*model.Session, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return session, nil
}
func (m *mockSessionRepo) GetBySessionID(sessionID string) (*model.Session, error) {
	return nil, repository.ErrNotFound
}
func (m *mockSessionRepo) Save(session *model.Session) error { return nil }
func (m *mockSessionRepo) Delete(id uint) error               { return nil }

func TestSessionEventSubscriberRegisterAndHandle(t *testing.T) {
	bus := eventbus.NewSessionEventBus()
	mockSvc := &mockHandoffService{}
	repo := &mockSessionRepo{sessions: map[uint]*model.Session{
		5: {ID: 5, SessionID: "sess-5", Status: "complete"},
	}}
	sub := NewSessionEventSubscriber(mockSvc, repo)
	sub.Register(bus)

	event := eventbus.SessionEvent{Type: eventbus.SessionEventCompleted, SessionRowID: 5, SessionID: "sess-5"}
	if err := bus.Publish(context.Background(), eventbus.SessionEventCompleted, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mockSvc.createCalled != 1 {
		t.Fatalf("expected one create call, got %d", mockSvc.createCalled)
	}
	if mockSvc.lastSession == nil || mockSvc.lastSession.SessionID != "sess-5" {
		t.Fatalf("expected session sess-5, got %+v", mockSvc.lastSession)
	}
}

func TestSessionEventSubscriberMissingSession(t *testing.T) {
	bus := eventbus.NewSessionEventBus()
	mockSvc := &mockHandoffService{}
	sub := NewSessionEventSubscriber(mockSvc, &mockSessionRepo{sessions: map[uint]*model.Session{}})
	sub.Register(bus)

	event := eventbus.SessionEvent{Type: eventbus.SessionEventCompleted, SessionRowID: 42}
	if err := bus.Publish(context.Background(), eventbus.SessionEventCompleted, event); err == nil {
		t.Fatalf("expected error for missing session")
	}
	if mockSvc.createCalled != 0 {
		t.Fatalf("expected no create calls, got %d", mockSvc.createCalled)
	}
}

func TestSessionEventSubscriberZeroRowID(t *testing.T) {
	bus := eventbus.NewSessionEventBus()
	mockSvc := &mockHandoffService{}
	sub := NewSessionEventSubscriber(mockSvc, &mockSessionRepo{sessions: map[uint]*model.Session{}})
	sub.Register(bus)

	if err := bus.Publish(context.Background(), eventbus.SessionEventCompleted, eventbus.SessionEvent{}); err == nil {
		t.Fatalf("expected error for zero session row id")
	}
}
