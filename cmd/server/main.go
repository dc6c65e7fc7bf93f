package main

import (
	"flag"
	"log"
	"os"

	"k8s.io/klog/v2"

	"github.com/lifesaver/backend/config"
	"github.com/lifesaver/backend/internal/eventbus"
	"github.com/lifesaver/backend/internal/handler"
	"github.com/lifesaver/backend/internal/pkg/adkagents"
	"github.com/lifesaver/backend/internal/pkg/database"
	"github.com/lifesaver/backend/internal/repository"
	"github.com/lifesaver/backend/internal/router"
	"github.com/lifesaver/backend/internal/service/dispatch"
	"github.com/lifesaver/backend/internal/service/eval"
	"github.com/lifesaver/backend/internal/service/guidance"
	"github.com/lifesaver/backend/internal/service/handoff"
	"github.com/lifesaver/backend/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	sessionRepo := repository.NewSessionRepository(db)
	eventRepo := repository.NewSessionEventRepository(db)
	reportRepo := repository.NewHandoffReportRepository(db)

	// 初始化模型与 Agent 工厂
	chatModel, err := adkagents.NewLLMChatModel(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize chat model: %v", err)
	}
	generator := adkagents.NewAgentGenerator(adkagents.NewAgentFactory(chatModel))

	// 初始化 Service
	bus := eventbus.NewSessionEventBus()
	guidanceSvc := guidance.NewService(sessionRepo, eventRepo, generator, bus, nil)
	handoffSvc := handoff.NewService(reportRepo, sessionRepo, guidanceSvc, enqueueReportJob)
	evalRunner := eval.NewRunner(guidanceSvc, cfg.Eval.MaxWorkers)

	// 初始化全局报告调度器
	reportExecutor := &reportExecutorAdapter{handoffService: handoffSvc}
	if err := dispatch.InitGlobalDispatcher(cfg.Dispatch.MaxWorkers, reportExecutor); err != nil {
		log.Fatalf("Failed to initialize dispatcher: %v", err)
	}
	defer dispatch.ShutdownGlobalDispatcher()

	// 会话完成事件触发后台报告生成
	sessionSubscriber := subscriber.NewSessionEventSubscriber(handoffSvc, sessionRepo)
	sessionSubscriber.Register(bus)

	// 启动时清理卡住的报告任务
	handoffSvc.CleanupStuck()

	// 初始化 Handler
	sessionHandler := handler.NewSessionHandler(guidanceSvc, handoffSvc, sessionRepo, eventRepo)
	protocolHandler := handler.NewProtocolHandler()
	evalHandler := handler.NewEvalHandler(evalRunner, cfg)
	configHandler := handler.NewConfigHandler(cfg)

	// 设置路由
	r := router.Setup(cfg, sessionHandler, protocolHandler, evalHandler, configHandler)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// enqueueReportJob 把报告任务提交给全局调度器
func enqueueReportJob(job *dispatch.Job) error {
	dispatcher := dispatch.GetGlobalDispatcher()
	if dispatcher == nil {
		return dispatch.ErrDispatcherStopped
	}
	return dispatcher.EnqueueJob(job)
}
