package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lifesaver/backend/internal/protocol"
)

type ProtocolHandler struct{}

func NewProtocolHandler() *ProtocolHandler {
	return &ProtocolHandler{}
}

func (h *ProtocolHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"protocols": protocol.All(),
		"types":     protocol.Types(),
	})
}

func (h *ProtocolHandler) Get(c *gin.Context) {
	proto, err := protocol.Lookup(c.Param("key"))
	if err != nil {
		var unknownErr *protocol.UnknownEmergencyError
		if errors.As(err, &unknownErr) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, proto)
}
