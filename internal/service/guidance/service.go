package guidance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/lifesaver/backend/internal/eventbus"
	"github.com/lifesaver/backend/internal/model"
	"github.com/lifesaver/backend/internal/pkg/adkagents"
	"github.com/lifesaver/backend/internal/protocol"
	"github.com/lifesaver/backend/internal/repository"
	"github.com/lifesaver/backend/internal/service/statemachine"
	"github.com/lifesaver/backend/internal/utils"
	"k8s.io/klog/v2"
)

var (
	// ErrSessionExists 会话ID已存在
	ErrSessionExists = errors.New("session already exists")
	// ErrProtocolNotSet 尚未分诊就推进指导，属于调用顺序错误
	ErrProtocolNotSet = errors.New("protocol is not set, run triage first")
)

// FallbackCalmingMessage 安抚 Agent 输出为空时的固定兜底文案
const FallbackCalmingMessage = "You're doing the right thing. Keep going with the current step; help is on the way."

// Service 急救指导编排服务
// 串联分诊、逐步指导、安抚与交接报告四类 Agent，事件日志按调用顺序追加
type Service struct {
	sessionRepo repository.SessionRepository
	eventRepo   repository.SessionEventRepository
	generator   adkagents.Generator
	bus         *eventbus.SessionEventBus
	sm          *statemachine.SessionStateMachine
	clock       clock.Clock
}

func NewService(
	sessionRepo repository.SessionRepository,
	eventRepo repository.SessionEventRepository,
	generator adkagents.Generator,
	bus *eventbus.SessionEventBus,
	clk clock.Clock,
) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		sessionRepo: sessionRepo,
		eventRepo:   eventRepo,
		generator:   generator,
		bus:         bus,
		sm:          statemachine.NewSessionStateMachine(),
		clock:       clk,
	}
}

// TriageOutcome 分诊结果
type TriageOutcome struct {
	EmergencyType string            `json:"emergency_type"`
	Confidence    float64           `json:"confidence"`
	Summary       string            `json:"summary"`
	RedFlags      []string          `json:"red_flags"`
	Protocol      protocol.Protocol `json:"protocol"`
}

// AdvanceResult 单次推进的返回
type AdvanceResult struct {
	InstructionMessage string `json:"instruction_message"`
	CalmingMessage     string `json:"calming_message"`
	StepIndex          int    `json:"step_index"`
	Done               bool   `json:"done"`
}

// instructorInput 指导 Agent 的输入负载
type instructorInput struct {
	EmergencyType    string   `json:"emergency_type"`
	ProtocolTitle    string   `json:"protocol_title"`
	Steps            []string `json:"steps"`
	CurrentStepIndex int      `json:"current_step_index"`
	UserUpdate       string   `json:"user_update"`
}

// protocolLookupLog protocol_lookup 事件的负载
type protocolLookupLog struct {
	Status        string `json:"status"`
	EmergencyType string `json:"emergency_type"`
	Title         string `json:"title,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// StartSession 创建新会话，只填充会话ID，不触发任何 Agent 调用
// sessionID 为空时自动生成 UUID
func (s *Service) StartSession(sessionID string) (*model.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}

	if _, err := s.sessionRepo.GetBySessionID(sessionID); err == nil {
		return nil, ErrSessionExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	session := &model.Session{
		SessionID: sessionID,
		Status:    string(statemachine.SessionStatusUnstarted),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	klog.V(6).Infof("[guidance] 会话已创建: sessionID=%s", sessionID)
	return session, nil
}

// Triage 对首条求助消息做分诊并绑定急救流程
// 模型输出解析失败走兜底路径；流程目录查不到才算失败，此时会话保持未分诊
func (s *Service) Triage(ctx context.Context, session *model.Session, userMessage string) (*TriageOutcome, error) {
	s.appendEvent(session, model.EventUserMessage, userMessage)

	raw, err := s.generator.Generate(ctx, adkagents.AgentTriage, userMessage)
	if err != nil {
		// 模型不可用等同空输出，走兜底解析路径
		klog.Warningf("[guidance] 分诊 Agent 调用失败，按空输出处理: sessionID=%s, err=%v", session.SessionID, err)
		raw = ""
	}
	s.appendEvent(session, model.EventTriageOutputRaw, raw)

	parsed := parseTriageOutput(raw)
	if parsed.EmergencyType == "" {
		parsed.EmergencyType = protocol.DefaultEmergencyType
	}
	s.appendEvent(session, model.EventTriageOutputParsed, utils.ToJSON(parsed))

	proto, err := protocol.Lookup(parsed.EmergencyType)
	if err != nil {
		s.appendEvent(session, model.EventProtocolLookup, utils.ToJSON(protocolLookupLog{
			Status:        "error",
			EmergencyType: parsed.EmergencyType,
			ErrorMessage:  err.Error(),
		}))
		// 查不到流程属于配置级错误，会话保持未分诊状态
		return nil, fmt.Errorf("protocol lookup failed: %w", err)
	}
	s.appendEvent(session, model.EventProtocolLookup, utils.ToJSON(protocolLookupLog{
		Status:        "success",
		EmergencyType: proto.Key,
		Title:         proto.Title,
	}))

	oldStatus := statemachine.SessionStatus(session.Status)
	if oldStatus != statemachine.SessionStatusTriaged {
		if err := s.sm.Transition(oldStatus, statemachine.SessionStatusTriaged, session.SessionID); err != nil {
			return nil, err
		}
	}

	session.EmergencyType = proto.Key
	session.ProtocolKey = proto.Key
	session.CurrentStepIndex = 0
	session.Done = false
	session.Status = string(statemachine.SessionStatusTriaged)
	if err := s.sessionRepo.Save(session); err != nil {
		return nil, fmt.Errorf("保存会话失败: %w", err)
	}

	klog.V(6).Infof("[guidance] 分诊完成: sessionID=%s, type=%s, confidence=%.2f",
		session.SessionID, proto.Key, parsed.Confidence)

	return &TriageOutcome{
		EmergencyType: proto.Key,
		Confidence:    parsed.Confidence,
		Summary:       parsed.Summary,
		RedFlags:      parsed.RedFlags,
		Protocol:      *proto,
	}, nil
}

// Advance 推进一步指导
// 指导 Agent 的输出只记录不采纳：步进固定为 min(当前+1, 最后一步)，到底后钉住不回绕
func (s *Service) Advance(ctx context.Context, session *model.Session, userUpdate string) (*AdvanceResult, error) {
	if session.ProtocolKey == "" {
		return nil, ErrProtocolNotSet
	}
	proto, err := protocol.Lookup(session.ProtocolKey)
	if err != nil {
		return nil, fmt.Errorf("protocol lookup failed: %w", err)
	}

	s.appendEvent(session, model.EventUserUpdate, userUpdate)

	instructorRaw, err := s.generator.Generate(ctx, adkagents.AgentInstructor, utils.ToJSON(instructorInput{
		EmergencyType:    session.EmergencyType,
		ProtocolTitle:    proto.Title,
		Steps:            proto.Steps,
		CurrentStepIndex: session.CurrentStepIndex,
		UserUpdate:       userUpdate,
	}))
	if err != nil {
		klog.Warningf("[guidance] 指导 Agent 调用失败，仅影响日志: sessionID=%s, err=%v", session.SessionID, err)
		instructorRaw = ""
	}
	s.appendEvent(session, model.EventInstructionOutput, instructorRaw)

	lastIndex := len(proto.Steps) - 1
	nextIndex := session.CurrentStepIndex + 1
	if nextIndex > lastIndex {
		nextIndex = lastIndex
	}
	done := nextIndex == lastIndex
	instruction := proto.Steps[nextIndex]

	calming, err := s.generator.Generate(ctx, adkagents.AgentCalmer,
		fmt.Sprintf("User said: %s. They are on step %d.", userUpdate, nextIndex))
	if err != nil {
		klog.Warningf("[guidance] 安抚 Agent 调用失败，使用兜底文案: sessionID=%s, err=%v", session.SessionID, err)
		calming = ""
	}
	if strings.TrimSpace(calming) == "" {
		calming = FallbackCalmingMessage
	}
	s.appendEvent(session, model.EventCalmingOutput, calming)

	session.CurrentStepIndex = nextIndex
	session.Done = done

	oldStatus := statemachine.SessionStatus(session.Status)
	newStatus := statemachine.SessionStatusInProgress
	if done {
		newStatus = statemachine.SessionStatusComplete
	}
	completedNow := false
	if oldStatus != newStatus {
		if err := s.sm.Transition(oldStatus, newStatus, session.SessionID); err != nil {
			return nil, err
		}
		session.Status = string(newStatus)
		completedNow = newStatus == statemachine.SessionStatusComplete
	}

	if err := s.sessionRepo.Save(session); err != nil {
		return nil, fmt.Errorf("保存会话失败: %w", err)
	}

	if completedNow && s.bus != nil {
		event := eventbus.SessionEvent{
			Type:          eventbus.SessionEventCompleted,
			SessionRowID:  session.ID,
			SessionID:     session.SessionID,
			EmergencyType: session.EmergencyType,
		}
		if err := s.bus.Publish(ctx, eventbus.SessionEventCompleted, event); err != nil {
			klog.Errorf("[guidance] 会话完成事件发布失败: sessionID=%s, err=%v", session.SessionID, err)
		}
	}

	klog.V(6).Infof("[guidance] 指导推进: sessionID=%s, step=%d/%d, done=%v",
		session.SessionID, nextIndex, lastIndex, done)

	return &AdvanceResult{
		InstructionMessage: instruction,
		CalmingMessage:     calming,
		StepIndex:          nextIndex,
		Done:               done,
	}, nil
}

// GenerateReport 基于完整事件日志生成交接报告
// 报告文本原样返回不做后处理；空日志同样成立（输入为空串）
func (s *Service) GenerateReport(ctx context.Context, session *model.Session) (string, error) {
	events, err := s.eventRepo.GetBySession(session.ID)
	if err != nil {
		return "", fmt.Errorf("加载事件日志失败: %w", err)
	}

	report, err := s.generator.Generate(ctx, adkagents.AgentEMTReporter, serializeEvents(events))
	if err != nil {
		// 报告生成失败不阻断调用方，按空输出处理
		klog.Warningf("[guidance] 报告 Agent 调用失败，返回空报告: sessionID=%s, err=%v", session.SessionID, err)
		report = ""
	}
	s.appendEvent(session, model.EventEMTReport, report)

	klog.V(6).Infof("[guidance] 交接报告已生成: sessionID=%s, 长度=%d", session.SessionID, len(report))
	return report, nil
}

// appendEvent 追加一条会话事件
// 事件日志是可审计的副产物，写入失败记录日志但不阻断急救指导
func (s *Service) appendEvent(session *model.Session, kind, payload string) {
	event := &model.SessionEvent{
		SessionRowID: session.ID,
		Kind:         kind,
		Payload:      payload,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.eventRepo.Append(event); err != nil {
		klog.Errorf("[guidance] 事件追加失败: sessionID=%s, kind=%s, err=%v", session.SessionID, kind, err)
	}
}
