package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shojbahmed330/voicebook/internal/core"
	"github.com/shojbahmed330/voicebook/internal/domain"
	"github.com/shojbahmed330/voicebook/internal/history"
	"github.com/shojbahmed330/voicebook/internal/store"
)

// SessionHandler exposes the session records over HTTP. Media never
// flows through here; this is the shared-record side only.
type SessionHandler struct {
	store   *store.Memory
	archive *history.Archive
}

func NewSessionHandler(s *store.Memory, a *history.Archive) *SessionHandler {
	return &SessionHandler{store: s, archive: a}
}

type storeOp func(ctx context.Context, s core.SessionStore, id domain.SessionID, user domain.UserID) error

type createCallRequest struct {
	Kind   domain.SessionKind `json:"kind" binding:"required"`
	Caller domain.Author      `json:"caller" binding:"required"`
	Callee domain.Author      `json:"callee" binding:"required"`
	ChatID string             `json:"chatId"`
}

func (h *SessionHandler) CreateCall(c *gin.Context) {
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Kind.IsDirect() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be a direct-call kind"})
		return
	}
	for _, a := range []domain.Author{req.Caller, req.Callee} {
		if err := a.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sess := domain.NewDirectCall(req.Kind, req.Caller, req.Callee, req.ChatID, time.Now())
	id, err := h.store.Create(c.Request.Context(), sess)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create call"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "session": sess})
}

type createRoomRequest struct {
	Kind  domain.SessionKind `json:"kind" binding:"required"`
	Host  domain.Author      `json:"host" binding:"required"`
	Topic string             `json:"topic"`
}

func (h *SessionHandler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind.IsDirect() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be a room kind"})
		return
	}
	if err := req.Host.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := domain.NewRoom(req.Kind, req.Host, req.Topic, time.Now())
	id, err := h.store.Create(c.Request.Context(), sess)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "session": sess})
}

// ListRooms is the live-rooms hub feed.
func (h *SessionHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.store.ListLive(c.Request.Context())})
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.store.Get(c.Request.Context(), domain.SessionID(c.Param("id")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *SessionHandler) Accept(c *gin.Context) { h.setStatus(c, domain.StatusActive) }

func (h *SessionHandler) Decline(c *gin.Context) { h.setStatus(c, domain.StatusDeclined) }

func (h *SessionHandler) End(c *gin.Context) { h.setStatus(c, domain.StatusEnded) }

func (h *SessionHandler) setStatus(c *gin.Context, status domain.SessionStatus) {
	id := domain.SessionID(c.Param("id"))
	if err := h.store.SetStatus(c.Request.Context(), id, status); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

type joinRequest struct {
	User domain.Author `json:"user" binding:"required"`
}

func (h *SessionHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.User.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := domain.SessionID(c.Param("id"))
	if err := store.Join(c.Request.Context(), h.store, id, domain.NewParticipant(req.User)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type userRequest struct {
	User domain.UserID `json:"user" binding:"required"`
}

func (h *SessionHandler) Leave(c *gin.Context) { h.participantOp(c, store.Leave) }

func (h *SessionHandler) RaiseHand(c *gin.Context) { h.participantOp(c, store.RaiseHand) }

func (h *SessionHandler) participantOp(c *gin.Context, op storeOp) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := domain.SessionID(c.Param("id"))
	if err := op(c.Request.Context(), h.store, id, req.User); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type moderationRequest struct {
	User domain.UserID `json:"user" binding:"required"`
	By   domain.UserID `json:"by" binding:"required"`
}

func (h *SessionHandler) InviteToSpeak(c *gin.Context) { h.moderate(c, store.PromoteToSpeaker) }

func (h *SessionHandler) MoveToAudience(c *gin.Context) { h.moderate(c, store.MoveToAudience) }

// moderate runs a host-only participant operation.
func (h *SessionHandler) moderate(c *gin.Context, op storeOp) {
	var req moderationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := domain.SessionID(c.Param("id"))

	sess, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !sess.IsHost(req.By) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the host can do that"})
		return
	}

	if err := op(c.Request.Context(), h.store, id, req.User); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SessionHandler) History(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	if user := c.Query("user"); user != "" {
		records, err := h.archive.ForUser(domain.UserID(user), 50)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": records})
		return
	}
	records, err := h.archive.Recent(50)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (h *SessionHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "status transition not allowed"})
	case errors.Is(err, core.ErrStoreTransaction):
		c.JSON(http.StatusConflict, gin.H{"error": "update rejected"})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
