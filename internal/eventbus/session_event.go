package eventbus

type SessionEventType string

const (
	// SessionEventCompleted 会话走到最后一步，触发后台交接报告生成
	SessionEventCompleted SessionEventType = "SessionCompleted"
)

type SessionEvent struct {
	Type          SessionEventType
	SessionRowID  uint
	SessionID     string
	EmergencyType string
}

type SessionEventHandler = Handler[SessionEvent]
type SessionEventBus = Bus[SessionEventType, SessionEvent]

func NewSessionEventBus() *SessionEventBus {
	return NewBus[SessionEventType, SessionEvent]()
}
