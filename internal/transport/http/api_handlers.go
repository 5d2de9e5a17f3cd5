package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/restobook/realtime-server/internal/auth"
	"github.com/restobook/realtime-server/internal/core"
	"github.com/restobook/realtime-server/internal/proto"
	"github.com/restobook/realtime-server/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	authService *auth.Service
	store       store.Store
	hub         *core.Hub
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, st store.Store, hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		store:       st,
		hub:         hub,
		log:         logger,
	}
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse is the public part of a user record.
type UserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// GuestRequest represents the guest registration body.
type GuestRequest struct {
	VisitorID string `json:"visitorId" binding:"required"`
	Name      string `json:"name"`
}

// GuestResponse represents a guest record in API responses.
type GuestResponse struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitorId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// PresenceResponse summarizes who is online.
type PresenceResponse struct {
	Sessions int                `json:"sessions"`
	Users    []proto.OnlineUser `json:"users"`
	Guests   int                `json:"guests"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		case errors.Is(err, auth.ErrSuspended):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "account suspended"})
		default:
			h.log.Error().Err(err).Str("email", req.Email).Msg("failed to login user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("user logged in successfully")
	c.JSON(http.StatusOK, AuthResponse{
		Token: token,
		User:  UserResponse{ID: user.ID, Name: user.Name, Role: string(user.Role)},
	})
}

// EnsureGuest returns the guest record for a visitor id, creating it on first use.
// POST /api/guests
func (h *APIHandlers) EnsureGuest(c *gin.Context) {
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VisitorID) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "visitorId is required"})
		return
	}

	guest, err := h.store.EnsureGuest(c.Request.Context(), strings.TrimSpace(req.VisitorID), strings.TrimSpace(req.Name))
	if err != nil {
		h.log.Error().Err(err).Str("visitor_id", req.VisitorID).Msg("failed to ensure guest")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, GuestResponse{
		ID:        guest.ID,
		VisitorID: guest.VisitorID,
		Name:      guest.Name,
		CreatedAt: guest.CreatedAt,
	})
}

// ListMyNotifications returns notifications addressed to the caller.
// GET /api/notifications
func (h *APIHandlers) ListMyNotifications(c *gin.Context) {
	h.listNotifications(c, store.RecipientUser, currentUserID(c))
}

// ListGuestNotifications returns notifications addressed to a visitor.
// GET /api/guests/:visitorId/notifications
func (h *APIHandlers) ListGuestNotifications(c *gin.Context) {
	h.listNotifications(c, store.RecipientGuest, c.Param("visitorId"))
}

func (h *APIHandlers) listNotifications(c *gin.Context, rtype store.RecipientType, recipient string) {
	limit, ok := pageSize(c)
	if !ok {
		return
	}

	list, err := h.store.ListNotifications(c.Request.Context(), rtype, recipient, limit)
	if err != nil {
		h.log.Error().Err(err).Str("recipient", recipient).Msg("failed to list notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.Notification, 0, len(list))
	for _, n := range list {
		out = append(out, toProtoNotification(n))
	}
	c.JSON(http.StatusOK, out)
}

// MarkNotificationRead flags one of the caller's notifications as read.
// PATCH /api/notifications/:id/read
func (h *APIHandlers) MarkNotificationRead(c *gin.Context) {
	err := h.store.MarkNotificationRead(c.Request.Context(), c.Param("id"), store.RecipientUser, currentUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "notification not found"})
			return
		}
		h.log.Error().Err(err).Str("notification_id", c.Param("id")).Msg("failed to mark notification read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListGuestMessages returns a guest conversation. Staff only.
// GET /api/guests/:visitorId/messages
func (h *APIHandlers) ListGuestMessages(c *gin.Context) {
	limit, ok := pageSize(c)
	if !ok {
		return
	}
	before, ok := beforeParam(c)
	if !ok {
		return
	}

	guest, err := h.store.GetGuestByVisitorID(c.Request.Context(), c.Param("visitorId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "guest not found"})
			return
		}
		h.log.Error().Err(err).Str("visitor_id", c.Param("visitorId")).Msg("failed to get guest")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	msgs, err := h.store.ListGuestMessages(c.Request.Context(), guest.ID, limit, before)
	h.writeMessages(c, msgs, err)
}

// ListMyMessages returns messages referencing the caller.
// GET /api/messages
func (h *APIHandlers) ListMyMessages(c *gin.Context) {
	limit, ok := pageSize(c)
	if !ok {
		return
	}
	before, ok := beforeParam(c)
	if !ok {
		return
	}

	msgs, err := h.store.ListUserMessages(c.Request.Context(), currentUserID(c), limit, before)
	h.writeMessages(c, msgs, err)
}

// Presence reports the online snapshot. Staff only.
// GET /api/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	stats := h.hub.Stats()
	online := h.hub.Main.OnlineUsers(c.Request.Context())

	users := make([]proto.OnlineUser, 0, len(online))
	for _, u := range online {
		users = append(users, proto.OnlineUser{ID: u.ID, Role: string(u.Role)})
	}
	c.JSON(http.StatusOK, PresenceResponse{Sessions: stats.Sessions, Users: users, Guests: stats.Guests})
}

func (h *APIHandlers) writeMessages(c *gin.Context, msgs []*store.Message, err error) {
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toProtoMessage(m))
	}
	c.JSON(http.StatusOK, out)
}

func pageSize(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultPageSize, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return 0, false
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	return n, true
}

func beforeParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("before")
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "before must be RFC3339"})
		return time.Time{}, false
	}
	return t, true
}
