package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/service/friends"
	"github.com/vovakirdan/kinchat-server/internal/store"
)

// FriendsHandlers provides HTTP handlers for friend management endpoints.
type FriendsHandlers struct {
	service *friends.Service
	users   store.UserStore
	hub     *core.Hub
	log     *zerolog.Logger
}

// NewFriendsHandlers creates a new friends handlers instance.
func NewFriendsHandlers(svc *friends.Service, users store.UserStore, hub *core.Hub, logger *zerolog.Logger) *FriendsHandlers {
	return &FriendsHandlers{
		service: svc,
		users:   users,
		hub:     hub,
		log:     logger,
	}
}

// SendFriendRequestRequest represents the request body for sending a friend request.
type SendFriendRequestRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// FriendResponse represents a friend in API responses.
type FriendResponse struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	FriendID       int64  `json:"friend_id"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	FriendUsername string `json:"friend_username,omitempty"`
	Online         bool   `json:"online"`
}

func (h *FriendsHandlers) friendToResponse(c *gin.Context, f *store.Friend, currentUserID int64) FriendResponse {
	other := friends.OtherParty(f, currentUserID)
	resp := FriendResponse{
		ID:        f.ID,
		UserID:    f.UserID,
		FriendID:  f.FriendID,
		Status:    string(f.Status),
		CreatedAt: f.CreatedAt.Format(time.RFC3339),
		UpdatedAt: f.UpdatedAt.Format(time.RFC3339),
		Online:    h.hub.IsOnline(other),
	}

	if user, err := h.users.GetUserByID(c.Request.Context(), other); err == nil {
		resp.FriendUsername = user.Username
	}
	return resp
}

// SendRequest handles sending a friend request and pushes it to the target if connected.
// POST /api/friends/requests
func (h *FriendsHandlers) SendRequest(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send friend request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	friend, err := h.service.SendRequest(c.Request.Context(), uid, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, friends.ErrCannotFriendSelf):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot send friend request to yourself"})
		case errors.Is(err, friends.ErrAlreadyFriends):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "already friends"})
		case errors.Is(err, friends.ErrRequestAlreadyExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "friend request already exists"})
		case errors.Is(err, friends.ErrBlockedByUser), errors.Is(err, friends.ErrUnblockFirst):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
		case errors.Is(err, friends.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		default:
			h.log.Error().Err(err).Int64("from_user_id", uid).Int64("to_user_id", req.UserID).Msg("failed to send friend request")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	username, _ := c.Get(ContextKeyUsername)
	name, _ := username.(string)
	pushed := h.hub.NotifyFriendRequest(req.UserID, core.FriendRequest{
		FromUserID:   uid,
		FromUsername: name,
		CreatedAt:    friend.CreatedAt,
	})

	h.log.Info().Int64("from_user_id", uid).Int64("to_user_id", req.UserID).Bool("pushed", pushed).Msg("friend request sent")
	c.JSON(http.StatusCreated, h.friendToResponse(c, friend, uid))
}

// ListFriends handles listing accepted friends.
// GET /api/friends
func (h *FriendsHandlers) ListFriends(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	friendsList, err := h.service.ListFriends(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list friends")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]FriendResponse, 0, len(friendsList))
	for _, f := range friendsList {
		response = append(response, h.friendToResponse(c, f, uid))
	}

	h.log.Debug().Int64("user_id", uid).Int("friend_count", len(friendsList)).Msg("friends listed")
	c.JSON(http.StatusOK, response)
}

// OnlineFriends returns the IDs of accepted friends that are connected right now.
// GET /api/friends/online
func (h *FriendsHandlers) OnlineFriends(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	ids, err := h.service.FriendIDs(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list friend ids")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	online := make([]int64, 0, len(ids))
	for _, id := range ids {
		if h.hub.IsOnline(id) {
			online = append(online, id)
		}
	}
	c.JSON(http.StatusOK, online)
}

// ListPendingRequests handles listing incoming pending friend requests.
// GET /api/friends/requests/incoming
func (h *FriendsHandlers) ListPendingRequests(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	requests, err := h.service.ListPendingRequests(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list pending requests")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]FriendResponse, 0, len(requests))
	for _, f := range requests {
		response = append(response, h.friendToResponse(c, f, uid))
	}

	h.log.Debug().Int64("user_id", uid).Int("request_count", len(requests)).Msg("pending requests listed")
	c.JSON(http.StatusOK, response)
}

// AcceptRequest handles accepting a friend request.
// POST /api/friends/:userId/accept
func (h *FriendsHandlers) AcceptRequest(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	fromUserID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	if err := h.service.AcceptRequest(c.Request.Context(), uid, fromUserID); err != nil {
		if errors.Is(err, friends.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "friend request not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Int64("from_user_id", fromUserID).Msg("failed to accept friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("from_user_id", fromUserID).Msg("friend request accepted")
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

// RejectRequest handles rejecting a friend request.
// DELETE /api/friends/:userId/reject
func (h *FriendsHandlers) RejectRequest(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	fromUserID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	if err := h.service.RejectRequest(c.Request.Context(), uid, fromUserID); err != nil {
		if errors.Is(err, friends.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "friend request not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Int64("from_user_id", fromUserID).Msg("failed to reject friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("from_user_id", fromUserID).Msg("friend request rejected")
	c.JSON(http.StatusOK, gin.H{"message": "friend request rejected"})
}

// BlockUser handles blocking a user.
// POST /api/friends/:userId/block
func (h *FriendsHandlers) BlockUser(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	targetUserID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	if err := h.service.BlockUser(c.Request.Context(), uid, targetUserID); err != nil {
		switch {
		case errors.Is(err, friends.ErrCannotFriendSelf):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot block yourself"})
		case errors.Is(err, friends.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		default:
			h.log.Error().Err(err).Int64("user_id", uid).Int64("target_user_id", targetUserID).Msg("failed to block user")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("target_user_id", targetUserID).Msg("user blocked")
	c.JSON(http.StatusOK, gin.H{"message": "user blocked"})
}

// UnblockUser handles unblocking a user.
// DELETE /api/friends/:userId/block
func (h *FriendsHandlers) UnblockUser(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	targetUserID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	if err := h.service.UnblockUser(c.Request.Context(), uid, targetUserID); err != nil {
		if errors.Is(err, friends.ErrNotBlocked) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user is not blocked"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Int64("target_user_id", targetUserID).Msg("failed to unblock user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("target_user_id", targetUserID).Msg("user unblocked")
	c.JSON(http.StatusOK, gin.H{"message": "user unblocked"})
}

// RemoveFriend ends an accepted friendship.
// DELETE /api/friends/:userId
func (h *FriendsHandlers) RemoveFriend(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	friendID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	if err := h.service.RemoveFriend(c.Request.Context(), uid, friendID); err != nil {
		if errors.Is(err, friends.ErrNotFriends) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not friends"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Int64("friend_id", friendID).Msg("failed to remove friend")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("friend_id", friendID).Msg("friend removed")
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}
