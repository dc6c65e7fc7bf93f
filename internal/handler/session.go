package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lifesaver/backend/internal/model"
	"github.com/lifesaver/backend/internal/repository"
	"github.com/lifesaver/backend/internal/service/guidance"
	"github.com/lifesaver/backend/internal/service/handoff"
)

type SessionHandler struct {
	guidanceSvc *guidance.Service
	handoffSvc  *handoff.Service
	sessionRepo repository.SessionRepository
	eventRepo   repository.SessionEventRepository
}

func NewSessionHandler(
	guidanceSvc *guidance.Service,
	handoffSvc *handoff.Service,
	sessionRepo repository.SessionRepository,
	eventRepo repository.SessionEventRepository,
) *SessionHandler {
	return &SessionHandler{
		guidanceSvc: guidanceSvc,
		handoffSvc:  handoffSvc,
		sessionRepo: sessionRepo,
		eventRepo:   eventRepo,
	}
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
}

type userMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	// 请求体可为空，session_id 缺省时自动生成
	_ = c.ShouldBindJSON(&req)

	session, err := h.guidanceSvc.StartSession(req.SessionID)
	if err != nil {
		if errors.Is(err, guidance.ErrSessionExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessionRepo.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	if err := h.eventRepo.DeleteBySession(session.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.sessionRepo.Delete(session.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

func (h *SessionHandler) GetEvents(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	events, err := h.eventRepo.GetBySession(session.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *SessionHandler) Triage(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	var req userMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	outcome, err := h.guidanceSvc.Triage(c.Request.Context(), session, req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (h *SessionHandler) Advance(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	var req userMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	result, err := h.guidanceSvc.Advance(c.Request.Context(), session, req.Message)
	if err != nil {
		if errors.Is(err, guidance.ErrProtocolNotSet) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Report 同步生成一份交接报告，不走后台队列
func (h *SessionHandler) Report(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	report, err := h.guidanceSvc.GenerateReport(c.Request.Context(), session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// GetHandoff 查询最近一次后台生成的交接报告
func (h *SessionHandler) GetHandoff(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	report, err := h.handoffSvc.GetLatestBySession(session.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "handoff report not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// RetryHandoff 重置并重新入队最近一次交接报告
func (h *SessionHandler) RetryHandoff(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	report, err := h.handoffSvc.GetLatestBySession(session.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "handoff report not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	retried, err := h.handoffSvc.Retry(report.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, retried)
}

// loadSession 按业务会话ID加载会话，未找到时直接写 404
func (h *SessionHandler) loadSession(c *gin.Context) (*model.Session, bool) {
	session, err := h.sessionRepo.GetBySessionID(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return session, true
}
