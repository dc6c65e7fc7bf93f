package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lifesaver/backend/config"
	"github.com/lifesaver/backend/internal/service/dispatch"
)

type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// Get 返回运行配置，密钥只暴露是否已配置
func (h *ConfigHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server": gin.H{
			"port": h.cfg.Server.Port,
			"mode": h.cfg.Server.Mode,
		},
		"database": gin.H{
			"type": h.cfg.Database.Type,
		},
		"llm": gin.H{
			"api_url":     h.cfg.LLM.APIURL,
			"model":       h.cfg.LLM.Model,
			"max_tokens":  h.cfg.LLM.MaxTokens,
			"api_key_set": h.cfg.LLM.APIKey != "",
		},
		"eval": gin.H{
			"scenario_file": h.cfg.Eval.ScenarioFile,
			"max_workers":   h.cfg.Eval.MaxWorkers,
		},
		"dispatch": gin.H{
			"max_workers": h.cfg.Dispatch.MaxWorkers,
		},
	})
}

// DispatchStatus 返回后台调度器队列状态
func (h *ConfigHandler) DispatchStatus(c *gin.Context) {
	dispatcher := dispatch.GetGlobalDispatcher()
	if dispatcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatcher not initialized"})
		return
	}
	c.JSON(http.StatusOK, dispatcher.GetQueueStatus())
}
