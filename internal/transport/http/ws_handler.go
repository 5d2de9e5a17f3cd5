package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/restobook/realtime-server/internal/config"
	"github.com/restobook/realtime-server/internal/core"
	"github.com/restobook/realtime-server/internal/proto"
	"github.com/restobook/realtime-server/internal/utils"
)

const writeTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and bridges them to the hub namespaces.
type WSHandler struct {
	hub *core.Hub
	cfg *config.Config
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, cfg: cfg, log: logger}
}

// connHandlers binds a namespace to the transport loop.
type connHandlers struct {
	decode     func(proto.Envelope) (*core.Command, *core.CoreError)
	handle     func(context.Context, *core.Session, *core.Command)
	disconnect func(*core.Session)
}

// Main serves the authenticated namespace.
// GET /ws
func (h *WSHandler) Main(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := h.hub.Main.Authenticate(ctx, bearerToken(c.Request))
	if err != nil {
		h.log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("ws connection refused")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: rejectionReason(err)})
		return
	}

	conn, err := h.accept(c)
	if err != nil {
		return
	}

	session := core.NewSession(utils.NewSessionID(), core.NamespaceMain, h.cfg.EventBuffer)
	if !h.hub.Main.Connect(session, user) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	h.serve(ctx, conn, session, connHandlers{
		decode:     mainInboundToCommand,
		handle:     h.hub.Main.Handle,
		disconnect: h.hub.Main.Disconnect,
	})
}

// Guest serves the anonymous namespace. No credential is checked.
// GET /ws/guest
func (h *WSHandler) Guest(c *gin.Context) {
	conn, err := h.accept(c)
	if err != nil {
		return
	}

	session := core.NewSession(utils.NewSessionID(), core.NamespaceGuest, h.cfg.EventBuffer)
	if !h.hub.Guest.Connect(session) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	h.serve(c.Request.Context(), conn, session, connHandlers{
		decode:     guestInboundToCommand,
		handle:     h.hub.Guest.Handle,
		disconnect: h.hub.Guest.Disconnect,
	})
}

func (h *WSHandler) accept(c *gin.Context) (*websocket.Conn, error) {
	opts := &websocket.AcceptOptions{}
	if patterns, allowAll := originPatterns(h.cfg.AllowedOrigins); allowAll {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = patterns
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return nil, err
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}
	return conn, nil
}

// inbound is one queued frame: a decoded command or the error to report
// in its place.
type inbound struct {
	cmd *core.Command
	err *core.CoreError
}

func (h *WSHandler) serve(ctx context.Context, conn *websocket.Conn, session *core.Session, hs connHandlers) {
	defer conn.Close(websocket.StatusInternalError, "internal error")
	defer hs.disconnect(session)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan inbound, h.cfg.EventBuffer)
	handled := make(chan struct{})
	go func() {
		h.handleLoop(ctx, session, hs, queue)
		close(handled)
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, hs, queue)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	err := <-errCh
	cancel() // stop the other goroutine
	<-errCh
	// Queued frames finish before presence is torn down.
	<-handled

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
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
			reason = "connection error"
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	_ = conn.Close(status, reason)
}

// readLoop keeps reading while earlier frames are handled so control frames
// (pongs, close) are never starved by a slow store call. Frames are queued
// in arrival order; the queue is closed when reading stops.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, hs connHandlers, queue chan<- inbound) error {
	defer close(queue)
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var in inbound
		if !limiter.allow() {
			h.log.Warn().Str("session_id", session.ID).Msg("rate limit exceeded")
			in.err = core.NewRateLimited()
		} else {
			in = decodeFrame(typ, data, hs.decode)
			if in.err != nil {
				h.log.Debug().Str("session_id", session.ID).Str("code", in.err.Code).Msg("rejected frame")
			}
		}

		select {
		case queue <- in:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleLoop runs queued frames one at a time, so a session's events are
// handled strictly in arrival order. It returns once the read loop has
// stopped and the queue is drained.
func (h *WSHandler) handleLoop(ctx context.Context, session *core.Session, hs connHandlers, queue <-chan inbound) {
	for in := range queue {
		if in.err != nil {
			session.Emit(&core.Event{Kind: core.EventError, Error: in.err})
			continue
		}
		hs.handle(ctx, session, in.cmd)
	}
}

func decodeFrame(typ websocket.MessageType, data []byte, decode func(proto.Envelope) (*core.Command, *core.CoreError)) inbound {
	if typ != websocket.MessageText {
		return inbound{err: core.NewBadRequest("text frames only")}
	}

	var env proto.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		return inbound{err: core.NewBadRequest(errInvalidPayload.Error())}
	}

	cmd, protoErr := decode(env)
	if protoErr != nil {
		return inbound{err: protoErr}
	}
	return inbound{cmd: cmd}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case event, ok := <-session.Events:
			if !ok {
				return nil
			}
			if err := h.write(ctx, conn, outboundFromEvent(session.Namespace, event)); err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Str("event", event.Kind.String()).Msg("write ws event")
				return err
			}
		case <-ping:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Str("session_id", session.ID).Msg("ping failed")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, out)
}

// bearerToken reads the credential from the Authorization header, falling back
// to the token query parameter that browsers must use for upgrades.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, core.ErrNoToken):
		return core.ErrNoToken.Error()
	case errors.Is(err, core.ErrInvalidToken):
		return core.ErrInvalidToken.Error()
	default:
		return core.ErrUnauthorized.Error()
	}
}

// originPatterns converts configured origins to host patterns. The second
// result is true when any origin is allowed.
func originPatterns(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, true
	}
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil, true
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns, false
}
