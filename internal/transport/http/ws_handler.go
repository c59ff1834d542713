package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/auth"
	"github.com/vovakirdan/kinchat-server/internal/config"
	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/metrics"
	"github.com/vovakirdan/kinchat-server/internal/proto"
)

const writeTimeout = 10 * time.Second

var errSessionEnded = errors.New("session ended")

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// closeError ends the connection with a specific close status.
type closeError struct {
	status websocket.StatusCode
	reason string
}

func (e *closeError) Error() string { return e.reason }

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	hub            *core.Hub
	auth           TokenValidator
	cfg            config.WSConfig
	originPatterns []string
	log            *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, validator TokenValidator, cfg config.WSConfig, allowedOrigins []string, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:            hub,
		auth:           validator,
		cfg:            cfg,
		originPatterns: originPatterns(allowedOrigins),
		log:            logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := core.NewSession()
	if err := h.handshake(ctx, conn, r, session); err != nil {
		var ce *closeError
		if errors.As(err, &ce) {
			h.log.Debug().Str("session_id", session.ID).Str("reason", ce.reason).Msg("ws handshake rejected")
			_ = conn.Close(ce.status, ce.reason)
			return
		}
		h.log.Debug().Err(err).Str("session_id", session.ID).Msg("ws handshake aborted")
		return
	}

	userID := session.UserID()
	h.hub.RegisterClient(session)
	defer h.hub.UnregisterClient(session)
	defer session.Close()

	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err = <-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, errSessionEnded):
		reason = errSessionEnded.Error()
	default:
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Int64("user_id", userID).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	// Close before cancelling so the peer receives the status; the close
	// handshake also unblocks the read loop.
	_ = conn.Close(status, truncateReason(reason))
	cancel()
	<-errCh
}

// handshake waits for user_connected and binds the session to the
// authenticated user.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn, r *stdhttp.Request, session *core.Session) error {
	hctx := ctx
	if h.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, h.cfg.HandshakeTimeout)
		defer cancel()
	}

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(hctx, conn, &inbound); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &closeError{status: websocket.StatusPolicyViolation, reason: "handshake timeout"}
			}
			return err
		}

		if inbound.Type != proto.InboundTypeUserConnected {
			if err := writeError(hctx, conn, core.ErrCodeNotIdentified, "send user_connected first"); err != nil {
				return err
			}
			continue
		}

		var hello proto.UserConnectedData
		if err := proto.DecodeData(inbound.Data, &hello); err != nil {
			_ = writeError(hctx, conn, core.ErrCodeBadRequest, "invalid user_connected payload")
			return &closeError{status: websocket.StatusPolicyViolation, reason: "invalid handshake"}
		}

		if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
			_ = writeError(hctx, conn, core.ErrCodeUnsupportedVersion,
				fmt.Sprintf("protocol %d is not supported, server speaks %d", hello.Protocol, proto.ProtocolVersion))
			return &closeError{status: websocket.StatusPolicyViolation, reason: "unsupported protocol version"}
		}

		token := hello.Token
		if token == "" {
			token = tokenFromRequest(r)
		}
		if token == "" {
			_ = writeError(hctx, conn, core.ErrCodeUnauthorized, "token is required")
			return &closeError{status: websocket.StatusPolicyViolation, reason: "unauthorized"}
		}

		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			h.log.Debug().Err(err).Str("session_id", session.ID).Msg("invalid ws token")
			_ = writeError(hctx, conn, core.ErrCodeUnauthorized, "invalid token")
			return &closeError{status: websocket.StatusPolicyViolation, reason: "unauthorized"}
		}
		if hello.UserID != 0 && hello.UserID != claims.UserID {
			_ = writeError(hctx, conn, core.ErrCodeUnauthorized, "userId does not match token")
			return &closeError{status: websocket.StatusPolicyViolation, reason: "unauthorized"}
		}

		if err := session.Identify(claims.UserID); err != nil {
			return err
		}
		return nil
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to map inbound")
			return err
		}
		if protoErr == nil && rateLimited(inbound.Type) && !limiter.allow() {
			metrics.RateLimitHits.Inc()
			protoErr = &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many requests"}
		}
		if protoErr != nil {
			if err := writeError(ctx, conn, protoErr.Code, protoErr.Msg); err != nil {
				return err
			}
			continue
		}

		select {
		case session.Commands <- cmd:
		case <-session.Done():
			return errSessionEnded
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	var pings <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case event := <-session.Events:
			if err := h.writeEvent(ctx, conn, session, event); err != nil {
				return err
			}
		case <-pings:
			pctx, cancel := context.WithTimeout(ctx, h.cfg.PingInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-session.Done():
			// Flush what was queued before the session ended.
			for {
				select {
				case event := <-session.Events:
					if err := h.writeEvent(ctx, conn, session, event); err != nil {
						return err
					}
				default:
					return errSessionEnded
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeEvent(ctx context.Context, conn *websocket.Conn, session *core.Session, event *core.Event) error {
	out, err := outboundFromEvent(event)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", session.ID).Msg("encode ws event")
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, out); err != nil {
		h.log.Debug().Err(err).Str("session_id", session.ID).Msg("write ws event")
		return err
	}
	return nil
}

func writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.NewError(code, msg))
}

func rateLimited(typ string) bool {
	return typ == proto.InboundTypeNewMessage || typ == proto.InboundTypeTypingStart
}

func tokenFromRequest(r *stdhttp.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// originPatterns converts allowed origins into host patterns for websocket.Accept.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

// Close reasons are limited to 123 bytes by the protocol.
func truncateReason(reason string) string {
	if len(reason) > 120 {
		return reason[:120]
	}
	return reason
}
