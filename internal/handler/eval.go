package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lifesaver/backend/config"
	"github.com/lifesaver/backend/internal/service/eval"
)

type EvalHandler struct {
	runner *eval.Runner
	cfg    *config.Config
}

func NewEvalHandler(runner *eval.Runner, cfg *config.Config) *EvalHandler {
	return &EvalHandler{runner: runner, cfg: cfg}
}

// Scenarios 返回当前生效的评测场景（文件缺失时为内置场景）
func (h *EvalHandler) Scenarios(c *gin.Context) {
	scenarios := eval.LoadScenarios(h.cfg.Eval.ScenarioFile)
	c.JSON(http.StatusOK, gin.H{"scenarios": scenarios, "count": len(scenarios)})
}

// Run 同步执行全部评测场景并返回汇总
// 场景会真实调用模型，耗时取决于场景数量与并发度
func (h *EvalHandler) Run(c *gin.Context) {
	scenarios := eval.LoadScenarios(h.cfg.Eval.ScenarioFile)
	summary, err := h.runner.Run(c.Request.Context(), scenarios)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
