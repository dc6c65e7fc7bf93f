package guidance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glebarez/sqlite"
	"github.com/lifesaver/backend/internal/eventbus"
	"github.com/lifesaver/backend/internal/model"
	"github.com/lifesaver/backend/internal/pkg/adkagents"
	"github.com/lifesaver/backend/internal/protocol"
	"github.com/lifesaver/backend/internal/repository"
	"gorm.io/gorm"
)

// fakeGenerator 可编排的 Generator 假实现
// responses 按 Agent 名称存放固定回复，errs 模拟模型不可用
type fakeGenerator struct {
	responses map[string]string
	errs      map[string]error
	inputs    map[string][]string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		inputs:    make(map[string][]string),
	}
}

func (f *fakeGenerator) Generate(ctx context.Context, agentName string, input string) (string, error) {
	f.inputs[agentName] = append(f.inputs[agentName], input)
	if err := f.errs[agentName]; err != nil {
		return "", err
	}
	return f.responses[agentName], nil
}

func newTestService(t *testing.T, gen adkagents.Generator, bus *eventbus.SessionEventBus, clk clock.Clock) (*Service, repository.SessionEventRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	if err := db.AutoMigrate(&model.Session{}, &model.SessionEvent{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	eventRepo := repository.NewSessionEventRepository(db)
	return NewService(repository.NewSessionRepository(db), eventRepo, gen, bus, clk), eventRepo
}

func eventKinds(t *testing.T, eventRepo repository.SessionEventRepository, sessionRowID uint) []string {
	t.Helper()
	events, err := eventRepo.GetBySession(sessionRowID)
	if err != nil {
		t.Fatalf("GetBySession error: %v", err)
	}
	kinds := make([]string, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestStartSession(t *testing.T) {
	svc, _ := newTestService(t, newFakeGenerator(), nil, nil)

	session, err := svc.StartSession("")
	if err != nil {
		t.Fatalf("StartSession error: %v", err)
	}
	if session.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
	if session.Status != "unstarted" {
		t.Fatalf("expected unstarted status, got %s", session.Status)
	}
	if session.EmergencyType != "" || session.ProtocolKey != "" {
		t.Fatalf("expected no emergency type or protocol before triage")
	}

	if _, err := svc.StartSession(session.SessionID); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestTriageSetsProtocol(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "cardiac_arrest", "confidence": 0.95, "summary": "adult collapsed, not breathing", "red_flags": ["not breathing"]}`
	svc, eventRepo := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-triage")
	outcome, err := svc.Triage(context.Background(), session, "My dad just collapsed and he's not breathing.")
	if err != nil {
		t.Fatalf("Triage error: %v", err)
	}
	if outcome.EmergencyType != protocol.TypeCardiacArrest {
		t.Fatalf("expected cardiac_arrest, got %s", outcome.EmergencyType)
	}
	if len(outcome.Protocol.Steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(outcome.Protocol.Steps))
	}
	if session.ProtocolKey != protocol.TypeCardiacArrest || session.EmergencyType != protocol.TypeCardiacArrest {
		t.Fatalf("expected protocol and type both set, got key=%s type=%s", session.ProtocolKey, session.EmergencyType)
	}
	if session.CurrentStepIndex != 0 || session.Done {
		t.Fatalf("expected index reset and done cleared")
	}
	if session.Status != "triaged" {
		t.Fatalf("expected triaged status, got %s", session.Status)
	}

	kinds := eventKinds(t, eventRepo, session.ID)
	expected := []string{
		model.EventUserMessage,
		model.EventTriageOutputRaw,
		model.EventTriageOutputParsed,
		model.EventProtocolLookup,
	}
	if len(kinds) != len(expected) {
		t.Fatalf("expected %d events, got %d: %v", len(expected), len(kinds), kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Fatalf("expected event[%d]=%s, got %s", i, expected[i], kinds[i])
		}
	}
}

func TestTriageFallbackOnMalformedOutput(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = "I think you should stay calm!"
	svc, _ := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-malformed")
	outcome, err := svc.Triage(context.Background(), session, "something is wrong")
	if err != nil {
		t.Fatalf("Triage error: %v", err)
	}
	if outcome.EmergencyType != protocol.DefaultEmergencyType {
		t.Fatalf("expected default type, got %s", outcome.EmergencyType)
	}
	if outcome.Confidence != 0 {
		t.Fatalf("expected zero confidence fallback, got %f", outcome.Confidence)
	}
	if session.ProtocolKey != protocol.DefaultEmergencyType {
		t.Fatalf("expected fallback protocol bound, got %s", session.ProtocolKey)
	}
}

func TestTriageGeneratorErrorFallsBack(t *testing.T) {
	gen := newFakeGenerator()
	gen.errs[adkagents.AgentTriage] = errors.New("upstream unavailable")
	svc, _ := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-down")
	outcome, err := svc.Triage(context.Background(), session, "help")
	if err != nil {
		t.Fatalf("Triage error: %v", err)
	}
	if outcome.EmergencyType != protocol.DefaultEmergencyType {
		t.Fatalf("expected default type under collaborator outage, got %s", outcome.EmergencyType)
	}
}

func TestTriageUnknownTypeIsFatal(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "zombie_bite", "confidence": 0.9, "summary": "?"}`
	svc, _ := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-unknown")
	_, err := svc.Triage(context.Background(), session, "bitten")
	if err == nil {
		t.Fatalf("expected error for unknown emergency type")
	}
	var unknownErr *protocol.UnknownEmergencyError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownEmergencyError, got %v", err)
	}
	if session.ProtocolKey != "" || session.EmergencyType != "" {
		t.Fatalf("expected session to remain untriaged after lookup failure")
	}
	if session.Status != "unstarted" {
		t.Fatalf("expected unstarted status, got %s", session.Status)
	}
}

func TestAdvanceBeforeTriage(t *testing.T) {
	svc, _ := newTestService(t, newFakeGenerator(), nil, nil)
	session, _ := svc.StartSession("s-early")

	if _, err := svc.Advance(context.Background(), session, "now what"); !errors.Is(err, ErrProtocolNotSet) {
		t.Fatalf("expected ErrProtocolNotSet, got %v", err)
	}
}

func TestAdvanceStepProgression(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "cardiac_arrest", "confidence": 1, "summary": "x"}`
	gen.responses[adkagents.AgentCalmer] = "You are doing great."
	svc, _ := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-steps")
	if _, err := svc.Triage(context.Background(), session, "he collapsed"); err != nil {
		t.Fatalf("Triage error: %v", err)
	}

	proto, _ := protocol.Lookup(protocol.TypeCardiacArrest)
	last := len(proto.Steps) - 1

	// 五步流程：推进 1→2→3 均未完成，第 4 次到达末步
	for i := 1; i <= 3; i++ {
		result, err := svc.Advance(context.Background(), session, "ok")
		if err != nil {
			t.Fatalf("Advance %d error: %v", i, err)
		}
		if result.StepIndex != i {
			t.Fatalf("expected index %d, got %d", i, result.StepIndex)
		}
		if result.Done {
			t.Fatalf("expected done=false at index %d", i)
		}
		if result.InstructionMessage != proto.Steps[i] {
			t.Fatalf("expected step text %q, got %q", proto.Steps[i], result.InstructionMessage)
		}
	}

	result, err := svc.Advance(context.Background(), session, "ok")
	if err != nil {
		t.Fatalf("Advance error: %v", err)
	}
	if result.StepIndex != last || !result.Done {
		t.Fatalf("expected done at last index %d, got index=%d done=%v", last, result.StepIndex, result.Done)
	}
	if session.Status != "complete" {
		t.Fatalf("expected complete status, got %s", session.Status)
	}

	// 完成后继续推进：钉在末步，不报错不越界
	result, err = svc.Advance(context.Background(), session, "they are here")
	if err != nil {
		t.Fatalf("Advance after done error: %v", err)
	}
	if result.StepIndex != last || !result.Done {
		t.Fatalf("expected index pinned at %d, got %d", last, result.StepIndex)
	}
	if result.InstructionMessage != proto.Steps[last] {
		t.Fatalf("expected last step text, got %q", result.InstructionMessage)
	}
}

func TestAdvanceIgnoresInstructorRecommendation(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "cardiac_arrest", "confidence": 1, "summary": "x"}`
	// 指导 Agent 建议直接跳到末步并结束——只记录，不采纳
	gen.responses[adkagents.AgentInstructor] = `{"next_step_index": 4, "done": true, "next_step_message": "skip ahead"}`
	gen.responses[adkagents.AgentCalmer] = "Keep going."
	svc, _ := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-ignore")
	if _, err := svc.Triage(context.Background(), session, "collapsed"); err != nil {
		t.Fatalf("Triage error: %v", err)
	}

	result, err := svc.Advance(context.Background(), session, "ok")
	if err != nil {
		t.Fatalf("Advance error: %v", err)
	}
	if result.StepIndex != 1 {
		t.Fatalf("expected fixed single-step advance to index 1, got %d", result.StepIndex)
	}
	if result.Done {
		t.Fatalf("expected done=false despite instructor recommendation")
	}
}

func TestAdvanceCalmingFallback(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "choking", "confidence": 1, "summary": "x"}`
	gen.responses[adkagents.AgentCalmer] = " \n\t"
	svc, eventRepo := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-calm")
	if _, err := svc.Triage(context.Background(), session, "she is choking"); err != nil {
		t.Fatalf("Triage error: %v", err)
	}

	result, err := svc.Advance(context.Background(), session, "ok")
	if err != nil {
		t.Fatalf("Advance error: %v", err)
	}
	if result.CalmingMessage != FallbackCalmingMessage {
		t.Fatalf("expected fallback calming message, got %q", result.CalmingMessage)
	}

	events, _ := eventRepo.GetBySession(session.ID)
	lastEvent := events[len(events)-1]
	if lastEvent.Kind != model.EventCalmingOutput || lastEvent.Payload != FallbackCalmingMessage {
		t.Fatalf("expected fallback logged as calming event, got kind=%s payload=%q", lastEvent.Kind, lastEvent.Payload)
	}
}

func TestAdvanceSurvivesCollaboratorOutage(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "anaphylaxis", "confidence": 1, "summary": "x"}`
	svc, _ := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-outage")
	if _, err := svc.Triage(context.Background(), session, "allergic reaction"); err != nil {
		t.Fatalf("Triage error: %v", err)
	}

	gen.errs[adkagents.AgentInstructor] = errors.New("timeout")
	gen.errs[adkagents.AgentCalmer] = errors.New("timeout")

	result, err := svc.Advance(context.Background(), session, "used the epipen")
	if err != nil {
		t.Fatalf("Advance error: %v", err)
	}
	if result.InstructionMessage == "" {
		t.Fatalf("expected a step instruction even under outage")
	}
	if result.CalmingMessage != FallbackCalmingMessage {
		t.Fatalf("expected fallback calming message under outage")
	}
}

func TestEventOrderAfterTriageAndAdvance(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "possible_stroke", "confidence": 1, "summary": "x"}`
	gen.responses[adkagents.AgentInstructor] = `{"next_step_index": 1, "done": false, "next_step_message": "y"}`
	gen.responses[adkagents.AgentCalmer] = "Stay with them."
	svc, eventRepo := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-order")
	if _, err := svc.Triage(context.Background(), session, "face drooping"); err != nil {
		t.Fatalf("Triage error: %v", err)
	}
	if _, err := svc.Advance(context.Background(), session, "she can't lift her arm"); err != nil {
		t.Fatalf("Advance error: %v", err)
	}

	expected := []string{
		model.EventUserMessage,
		model.EventTriageOutputRaw,
		model.EventTriageOutputParsed,
		model.EventProtocolLookup,
		model.EventUserUpdate,
		model.EventInstructionOutput,
		model.EventCalmingOutput,
	}
	kinds := eventKinds(t, eventRepo, session.ID)
	if len(kinds) != len(expected) {
		t.Fatalf("expected %d events, got %d: %v", len(expected), len(kinds), kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Fatalf("expected event[%d]=%s, got %s", i, expected[i], kinds[i])
		}
	}
}

func TestAdvancePublishesCompletionOnce(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "choking", "confidence": 1, "summary": "x"}`
	gen.responses[adkagents.AgentCalmer] = "ok"
	bus := eventbus.NewSessionEventBus()
	completed := 0
	bus.Subscribe(eventbus.SessionEventCompleted, func(ctx context.Context, event eventbus.SessionEvent) error {
		completed++
		return nil
	})
	svc, _ := newTestService(t, gen, bus, nil)

	session, _ := svc.StartSession("s-bus")
	if _, err := svc.Triage(context.Background(), session, "choking"); err != nil {
		t.Fatalf("Triage error: %v", err)
	}

	// choking 流程 4 步：3 次推进到末步，再推进一次验证只发布一次
	for i := 0; i < 4; i++ {
		if _, err := svc.Advance(context.Background(), session, "ok"); err != nil {
			t.Fatalf("Advance error: %v", err)
		}
	}
	if completed != 1 {
		t.Fatalf("expected exactly one completion event, got %d", completed)
	}
}

func TestGenerateReportEmptyLog(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentEMTReporter] = ""
	svc, eventRepo := newTestService(t, gen, nil, nil)

	session, _ := svc.StartSession("s-empty")
	report, err := svc.GenerateReport(context.Background(), session)
	if err != nil {
		t.Fatalf("GenerateReport error: %v", err)
	}
	if report != "" {
		t.Fatalf("expected empty report, got %q", report)
	}
	if got := gen.inputs[adkagents.AgentEMTReporter][0]; got != "" {
		t.Fatalf("expected empty serialization for empty log, got %q", got)
	}

	kinds := eventKinds(t, eventRepo, session.ID)
	if len(kinds) != 1 || kinds[0] != model.EventEMTReport {
		t.Fatalf("expected single emt_report event, got %v", kinds)
	}
}

func TestGenerateReportSerializesTimeline(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "cardiac_arrest", "confidence": 1, "summary": "x"}`
	gen.responses[adkagents.AgentCalmer] = "ok"
	gen.responses[adkagents.AgentEMTReporter] = "Patient: adult male. CPR in progress."
	mock := clock.NewMock()
	svc, _ := newTestService(t, gen, nil, mock)

	session, _ := svc.StartSession("s-report")
	if _, err := svc.Triage(context.Background(), session, "dad collapsed, not breathing"); err != nil {
		t.Fatalf("Triage error: %v", err)
	}
	mock.Add(90 * time.Second)
	if _, err := svc.Advance(context.Background(), session, "doing compressions"); err != nil {
		t.Fatalf("Advance error: %v", err)
	}

	report, err := svc.GenerateReport(context.Background(), session)
	if err != nil {
		t.Fatalf("GenerateReport error: %v", err)
	}
	if report != "Patient: adult male. CPR in progress." {
		t.Fatalf("expected verbatim report, got %q", report)
	}

	serialized := gen.inputs[adkagents.AgentEMTReporter][0]
	if !strings.Contains(serialized, model.EventUserMessage) {
		t.Fatalf("expected serialized log to include user_message, got %q", serialized)
	}
	if !strings.Contains(serialized, "1m30s") {
		t.Fatalf("expected relative elapsed offsets in serialization, got %q", serialized)
	}
	if !strings.Contains(serialized, "doing compressions") {
		t.Fatalf("expected user update payload in serialization")
	}

	lines := strings.Split(serialized, "\n")
	if len(lines) != 7 {
		t.Fatalf("expected 7 serialized events, got %d", len(lines))
	}
}

func TestEndToEndCardiacArrestScenario(t *testing.T) {
	gen := newFakeGenerator()
	gen.responses[adkagents.AgentTriage] = `{"emergency_type": "cardiac_arrest", "confidence": 0.97, "summary": "adult collapsed"}`
	gen.responses[adkagents.AgentInstructor] = `{"next_step_index": 1, "done": false, "next_step_message": "m"}`
	gen.responses[adkagents.AgentCalmer] = "Help is on the way."
	gen.responses[adkagents.AgentEMTReporter] = "CPR started within one minute. AED not yet applied."
	svc, _ := newTestService(t, gen, nil, nil)

	session, err := svc.StartSession("")
	if err != nil {
		t.Fatalf("StartSession error: %v", err)
	}

	outcome, err := svc.Triage(context.Background(), session, "My dad just collapsed and he's not breathing.")
	if err != nil {
		t.Fatalf("Triage error: %v", err)
	}
	if outcome.EmergencyType != protocol.TypeCardiacArrest {
		t.Fatalf("expected cardiac_arrest classification")
	}
	if len(outcome.Protocol.Steps) != 5 {
		t.Fatalf("expected 5 protocol steps")
	}

	// 三次推进走到 index 3，done 只在第 4 次（index 4）变 true
	for i, update := range []string{
		"I'm on the floor next to him.",
		"I'm doing chest compressions like you said.",
		"The ambulance just arrived.",
	} {
		result, err := svc.Advance(context.Background(), session, update)
		if err != nil {
			t.Fatalf("Advance error: %v", err)
		}
		if result.StepIndex != i+1 {
			t.Fatalf("expected index %d, got %d", i+1, result.StepIndex)
		}
		if result.Done {
			t.Fatalf("expected done=false at index %d", result.StepIndex)
		}
	}

	result, err := svc.Advance(context.Background(), session, "still going")
	if err != nil {
		t.Fatalf("Advance error: %v", err)
	}
	if !result.Done || result.StepIndex != 4 {
		t.Fatalf("expected done=true at index 4, got index=%d done=%v", result.StepIndex, result.Done)
	}

	report, err := svc.GenerateReport(context.Background(), session)
	if err != nil {
		t.Fatalf("GenerateReport error: %v", err)
	}
	if report == "" {
		t.Fatalf("expected non-empty report")
	}
}
