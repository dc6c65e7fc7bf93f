package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/lifesaver/backend/internal/model"
	"github.com/lifesaver/backend/internal/repository"
	"github.com/lifesaver/backend/internal/service/dispatch"
	"github.com/lifesaver/backend/internal/service/guidance"
	"github.com/lifesaver/backend/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// stuckReportTimeout 超过该时长仍在 running 的报告视为卡死
const stuckReportTimeout = 10 * time.Minute

// Service 交接报告生命周期管理
// 报告记录走 pending -> queued -> running -> succeeded/failed 状态机，
// 实际文本生成委托给 guidance 服务，入队由 dispatch 调度器消费
type Service struct {
	reportRepo  repository.HandoffReportRepository
	sessionRepo repository.SessionRepository
	guidanceSvc *guidance.Service
	sm          *statemachine.ReportStateMachine
	enqueue     func(job *dispatch.Job) error
}

func NewService(
	reportRepo repository.HandoffReportRepository,
	sessionRepo repository.SessionRepository,
	guidanceSvc *guidance.Service,
	enqueue func(job *dispatch.Job) error,
) *Service {
	return &Service{
		reportRepo:  reportRepo,
		sessionRepo: sessionRepo,
		guidanceSvc: guidanceSvc,
		sm:          statemachine.NewReportStateMachine(),
		enqueue:     enqueue,
	}
}

// CreateForSession 为会话创建报告记录并入队后台生成
// 入队失败时报告留在 pending，可再次触发
func (s *Service) CreateForSession(session *model.Session) (*model.HandoffReport, error) {
	report := &model.HandoffReport{
		SessionRowID: session.ID,
		SessionID:    session.SessionID,
		Status:       string(statemachine.ReportStatusPending),
	}
	if err := s.reportRepo.Create(report); err != nil {
		return nil, fmt.Errorf("创建报告记录失败: %w", err)
	}

	if s.enqueue == nil {
		klog.Warningf("[handoff] 调度器不可用，报告保持 pending: reportID=%d", report.ID)
		return report, nil
	}
	if err := s.enqueue(dispatch.NewReportJob(report.ID)); err != nil {
		klog.Errorf("[handoff] 报告任务入队失败: reportID=%d, err=%v", report.ID, err)
		return report, nil
	}

	if err := s.sm.Transition(statemachine.ReportStatusPending, statemachine.ReportStatusQueued, report.ID); err != nil {
		return nil, err
	}
	report.Status = string(statemachine.ReportStatusQueued)
	if err := s.reportRepo.Save(report); err != nil {
		return nil, fmt.Errorf("保存报告状态失败: %w", err)
	}

	klog.V(6).Infof("[handoff] 报告任务已入队: reportID=%d, sessionID=%s", report.ID, session.SessionID)
	return report, nil
}

// Execute 执行一次报告生成，由调度器回调
// 终态报告直接跳过，避免重复消费同一任务
func (s *Service) Execute(ctx context.Context, reportID uint) error {
	report, err := s.reportRepo.Get(reportID)
	if err != nil {
		return fmt.Errorf("加载报告记录失败: %w", err)
	}
	if statemachine.IsReportTerminal(statemachine.ReportStatus(report.Status)) {
		klog.V(6).Infof("[handoff] 报告已是终态，跳过: reportID=%d, status=%s", reportID, report.Status)
		return nil
	}

	// 入队先于落库，调度器可能在状态仍为 pending 时取到任务
	status := statemachine.ReportStatus(report.Status)
	if status == statemachine.ReportStatusPending {
		if err := s.sm.Transition(status, statemachine.ReportStatusQueued, report.ID); err != nil {
			return err
		}
		status = statemachine.ReportStatusQueued
	}
	if err := s.sm.Transition(status, statemachine.ReportStatusRunning, report.ID); err != nil {
		return err
	}
	now := time.Now()
	report.Status = string(statemachine.ReportStatusRunning)
	report.StartedAt = &now
	if err := s.reportRepo.Save(report); err != nil {
		return fmt.Errorf("保存报告状态失败: %w", err)
	}

	session, err := s.sessionRepo.Get(report.SessionRowID)
	if err != nil {
		s.markFailed(report, fmt.Errorf("加载会话失败: %w", err))
		return err
	}

	content, err := s.guidanceSvc.GenerateReport(ctx, session)
	if err != nil {
		s.markFailed(report, err)
		return err
	}

	completed := time.Now()
	report.Status = string(statemachine.ReportStatusSucceeded)
	report.Content = content
	report.ErrorMsg = ""
	report.CompletedAt = &completed
	if err := s.reportRepo.Save(report); err != nil {
		return fmt.Errorf("保存报告内容失败: %w", err)
	}

	klog.V(6).Infof("[handoff] 报告生成成功: reportID=%d, sessionID=%s, 长度=%d",
		report.ID, report.SessionID, len(content))
	return nil
}

// Retry 重置失败或成功的报告并重新入队
func (s *Service) Retry(reportID uint) (*model.HandoffReport, error) {
	report, err := s.reportRepo.Get(reportID)
	if err != nil {
		return nil, fmt.Errorf("加载报告记录失败: %w", err)
	}

	if err := s.sm.Transition(statemachine.ReportStatus(report.Status), statemachine.ReportStatusPending, report.ID); err != nil {
		return nil, err
	}
	report.Status = string(statemachine.ReportStatusPending)
	report.ErrorMsg = ""
	report.StartedAt = nil
	report.CompletedAt = nil
	if err := s.reportRepo.Save(report); err != nil {
		return nil, fmt.Errorf("保存报告状态失败: %w", err)
	}

	if s.enqueue != nil {
		if err := s.enqueue(dispatch.NewReportJob(report.ID)); err != nil {
			klog.Errorf("[handoff] 报告重试入队失败: reportID=%d, err=%v", report.ID, err)
			return report, nil
		}
		if err := s.sm.Transition(statemachine.ReportStatusPending, statemachine.ReportStatusQueued, report.ID); err != nil {
			return nil, err
		}
		report.Status = string(statemachine.ReportStatusQueued)
		if err := s.reportRepo.Save(report); err != nil {
			return nil, fmt.Errorf("保存报告状态失败: %w", err)
		}
	}
	return report, nil
}

// GetLatestBySession 查询会话最近一次报告
func (s *Service) GetLatestBySession(sessionRowID uint) (*model.HandoffReport, error) {
	return s.reportRepo.GetLatestBySession(sessionRowID)
}

// CleanupStuck 启动时清理卡死的 running 报告
func (s *Service) CleanupStuck() {
	count, err := s.reportRepo.CleanupStuckReports(stuckReportTimeout)
	if err != nil {
		klog.Errorf("[handoff] 清理卡死报告失败: %v", err)
		return
	}
	if count > 0 {
		klog.V(6).Infof("[handoff] 已清理卡死报告: count=%d", count)
	}
}

// markFailed 标记报告失败，保存错误信息
func (s *Service) markFailed(report *model.HandoffReport, cause error) {
	completed := time.Now()
	report.Status = string(statemachine.ReportStatusFailed)
	report.ErrorMsg = cause.Error()
	report.CompletedAt = &completed
	if err := s.reportRepo.Save(report); err != nil {
		klog.Errorf("[handoff] 保存失败状态出错: reportID=%d, err=%v", report.ID, err)
	}
}
