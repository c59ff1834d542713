package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store    store.UserStore
	lastSeen store.LastSeenStore
	hub      *core.Hub
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, lastSeen store.LastSeenStore, hub *core.Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:    st,
		lastSeen: lastSeen,
		hub:      hub,
		log:      logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// PresenceResponse describes whether a user is connected and when they were last seen.
type PresenceResponse struct {
	UserID   int64      `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func userToResponse(u *store.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username}
}

// SearchUsers handles searching for users.
// GET /api/users/search?q=query
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	trimmed := strings.TrimSpace(c.Query("q"))
	if len(trimmed) < 3 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "search query must be at least 3 characters"})
		return
	}

	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), trimmed)
	if err != nil {
		h.log.Error().Err(err).Str("query", trimmed).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		if u.ID == uid {
			continue
		}
		response = append(response, userToResponse(u))
	}

	c.JSON(http.StatusOK, response)
}

// Presence reports a user's online flag and last-seen time.
// GET /api/users/:userId/presence
func (h *UserHandlers) Presence(c *gin.Context) {
	if _, ok := currentUserID(c, h.log); !ok {
		return
	}
	target, ok := paramID(c, "userId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetUserByID(ctx, target); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", target).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := PresenceResponse{UserID: target, Online: h.hub.IsOnline(target)}
	if !resp.Online {
		seen, err := h.lastSeen.LastSeen(ctx, target)
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", target).Msg("failed to load last seen")
		}
		resp.LastSeen = seen
	}

	c.JSON(http.StatusOK, resp)
}
