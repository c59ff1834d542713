package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/service/messages"
	"github.com/vovakirdan/kinchat-server/internal/store"
)

// MessagesHandlers exposes direct messages over REST.
type MessagesHandlers struct {
	service *messages.Service
	hub     *core.Hub
	log     *zerolog.Logger
}

// NewMessagesHandlers creates a new messages handlers instance.
func NewMessagesHandlers(svc *messages.Service, hub *core.Hub, logger *zerolog.Logger) *MessagesHandlers {
	return &MessagesHandlers{service: svc, hub: hub, log: logger}
}

// SendMessageRequest is the body of POST /api/messages/send.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Text       string `json:"text"`
}

// MessageResponse represents a direct message in API responses.
type MessageResponse struct {
	ID         string    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Text       string    `json:"text"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReadResponse reports the outcome of marking a message read.
type ReadResponse struct {
	MessageID        string `json:"message_id"`
	ReceiptDelivered bool   `json:"receipt_delivered"`
}

func storedToResponse(m *store.DirectMessage) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

// Send relays a message exactly like the WebSocket new_message event.
// POST /api/messages/send
func (h *MessagesHandlers) Send(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.hub.Submit(c.Request.Context(), core.Submission{
		SenderID:   uid,
		ReceiverID: req.ReceiverID,
		Text:       req.Text,
	})
	if err != nil {
		ce := core.ToCoreError(err)
		switch ce.Code {
		case core.ErrCodeEmptyMessage, core.ErrCodeMessageTooLong, core.ErrCodeBadRequest:
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: ce.Message})
		case core.ErrCodeNotAllowed:
			c.JSON(http.StatusForbidden, ErrorResponse{Error: ce.Message})
		default:
			h.log.Error().Err(err).Int64("sender_id", uid).Int64("receiver_id", req.ReceiverID).Msg("failed to send message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ce.Message})
		}
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt,
	})
}

// History returns the conversation with a friend and marks their messages read.
// GET /api/messages/:friendId?limit=50&before=<unix ms>
func (h *MessagesHandlers) History(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	peerID, ok := paramID(c, "friendId")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		t := time.UnixMilli(ms).UTC()
		before = &t
	}

	msgs, err := h.service.History(c.Request.Context(), uid, peerID, limit, before)
	if err != nil {
		if errors.Is(err, messages.ErrInvalidPeer) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation peer"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", uid).Int64("peer_id", peerID).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, storedToResponse(m))
	}
	c.JSON(http.StatusOK, response)
}

// MarkRead flags a received message as read and notifies its sender.
// PUT /api/messages/:messageId/read
func (h *MessagesHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	messageID := c.Param("messageId")

	msg, err := h.service.MarkRead(c.Request.Context(), uid, messageID)
	if err != nil {
		switch {
		case errors.Is(err, messages.ErrMessageNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		case errors.Is(err, messages.ErrNotReceiver):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not authorized"})
		default:
			h.log.Error().Err(err).Int64("user_id", uid).Str("message_id", messageID).Msg("failed to mark message read")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	delivered := h.hub.NotifyRead(msg.ID, msg.SenderID)
	c.JSON(http.StatusOK, ReadResponse{MessageID: msg.ID, ReceiptDelivered: delivered})
}
