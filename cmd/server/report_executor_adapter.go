package main

import (
	"context"

	"github.com/lifesaver/backend/internal/service/handoff"
)

// reportExecutorAdapter 将 handoff.Service 适配为 ReportExecutor 接口
// 避免 dispatch 和 handoff 之间的循环依赖
type reportExecutorAdapter struct {
	handoffService *handoff.Service
}

// ExecuteReport 执行报告生成
// 实现 dispatch.ReportExecutor 接口
func (a *reportExecutorAdapter) ExecuteReport(ctx context.Context, reportID uint) error {
	return a.handoffService.Execute(ctx, reportID)
}
