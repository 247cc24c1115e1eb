package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/app"
	"chatrelay/internal/domain"
	"chatrelay/pkg/errors"
)

type RoomHandler struct {
	rooms *app.RoomManager
}

func NewRoomHandler(rooms *app.RoomManager) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateSession is the explicit room-creation path; it only mints the
// identifier, membership happens over the signal channel.
func (h *RoomHandler) CreateSession(c *gin.Context) {
	room := h.rooms.Create()
	c.JSON(http.StatusOK, gin.H{"sessionId": room.Room().ID})
}

// JoinSession records a join on the room's roster by token. It does
// not grant membership; that happens over the signal channel.
func (h *RoomHandler) JoinSession(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
		Username  string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		status := errors.HTTPStatusFromError(errors.ErrBadRequest)
		c.JSON(status, errors.NewAPIError(errors.ErrBadRequest.Error(), status))
		return
	}

	room, ok := h.rooms.Get(domain.RoomID(req.SessionID))
	if !ok {
		log.Info().Str("module", "adapters.http").Str("room", req.SessionID).Msg("join for unknown room")
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": errors.ErrRoomNotFound.Error()})
		return
	}
	room.RegisterJoin(req.Username)
	log.Info().Str("module", "adapters.http").Str("room", req.SessionID).Str("user", req.Username).Msg("roster join")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SessionUsers looks a room up without creation side effects.
func (h *RoomHandler) SessionUsers(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	room, ok := h.rooms.Get(id)
	if !ok {
		log.Info().Str("module", "adapters.http").Str("room", string(id)).Msg("lookup for unknown room")
		status := errors.HTTPStatusFromError(errors.ErrRoomNotFound)
		c.JSON(status, errors.NewAPIError(errors.ErrRoomNotFound.Error(), status))
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": room.MembersSnapshot()})
}

func (h *RoomHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
