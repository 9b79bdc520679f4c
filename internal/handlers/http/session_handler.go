package http

import (
	"net/http"

	"coview/internal/core/ports"
	apperrors "coview/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the handshake and player state over the local HTTP
// surface, as an alternative to the interactive prompts.
type SessionHandler struct {
	session ports.SessionService
	player  ports.Player
}

func NewSessionHandler(session ports.SessionService, player ports.Player) *SessionHandler {
	return &SessionHandler{
		session: session,
		player:  player,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/session", h.GetSession)
		api.GET("/session/signal", h.GetLocalSignal)
		api.POST("/session/signal", h.SubmitRemoteSignal)
		api.GET("/player", h.GetPlayerState)
	}
}

func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"role":  h.session.Role(),
		"state": h.session.State(),
	})
}

func (h *SessionHandler) GetLocalSignal(c *gin.Context) {
	blob := h.session.LocalSignal()
	if blob == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "local signal not generated yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":   blob.Kind,
		"signal": blob.String(),
	})
}

func (h *SessionHandler) SubmitRemoteSignal(c *gin.Context) {
	var req struct {
		Signal string `json:"signal" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.session.SubmitRemoteSignal(req.Signal); err != nil {
		appErr := apperrors.FromDomain(err)
		c.JSON(appErr.HTTPStatus, gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"state": h.session.State()})
}

func (h *SessionHandler) GetPlayerState(c *gin.Context) {
	c.JSON(http.StatusOK, h.player.State())
}
