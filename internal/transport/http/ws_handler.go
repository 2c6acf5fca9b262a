package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vseti/vseti-chat/internal/config"
	"github.com/vseti/vseti-chat/internal/core"
	"github.com/vseti/vseti-chat/internal/proto"
	"github.com/vseti/vseti-chat/internal/utils"
)

const writeTimeout = 10 * time.Second

var (
	errAuthTimeout   = errors.New("authentication timeout")
	errSessionClosed = errors.New("session closed")
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub    *core.Hub
	cfg    *config.Config
	mapper *commandMapper
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, mapper: newCommandMapper(), log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.WSOriginPatterns,
		InsecureSkipVerify: len(h.cfg.WSOriginPatterns) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), h.cfg.ClientBufferSize)
	h.hub.Connect(client)
	defer h.hub.Disconnect(client)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return h.readLoop(ctx, conn, client) })
	g.Go(func() error { return h.writeLoop(ctx, conn, client) })
	g.Go(func() error { return h.authDeadline(ctx, conn, client) })
	err = g.Wait()

	status, reason := closeStatus(err)
	if status == websocket.StatusInternalError {
		h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
	}
	_ = conn.Close(status, reason)
}

func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, errSessionClosed), errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, errAuthTimeout):
		return websocket.StatusPolicyViolation, errAuthTimeout.Error()
	}
	switch s := websocket.CloseStatus(err); s {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case websocket.StatusMessageTooBig:
		return websocket.StatusMessageTooBig, "message too big"
	}
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if client.State() == core.StateClosed {
				return errSessionClosed
			}
			return err
		}

		var inbound proto.Inbound
		if typ != websocket.MessageText {
			h.hub.Fail(client, "", invalidInput("expected a text frame"))
			continue
		}
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.hub.Fail(client, "", invalidInput("malformed frame"))
			continue
		}
		if !limiter.allow() {
			h.hub.Fail(client, inbound.Type, core.ErrRateLimited)
			continue
		}

		if inbound.Type != proto.InboundTypeAuth && !client.Authenticated() {
			h.hub.Fail(client, inbound.Type, core.ErrNotAuthenticated)
			continue
		}

		cmd, err := h.mapper.inboundToCommand(inbound)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Str("type", inbound.Type).Msg("rejected inbound")
			h.hub.Fail(client, inbound.Type, err)
			continue
		}
		h.hub.Handle(ctx, client, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := h.write(ctx, conn, client, event); err != nil {
				return err
			}
		case <-client.Done():
			// Flush what was queued before the close, e.g. logout_success.
			for {
				select {
				case event := <-client.Events:
					if err := h.write(ctx, conn, client, event); err != nil {
						return err
					}
				default:
					_ = conn.Close(websocket.StatusNormalClosure, errSessionClosed.Error())
					return errSessionClosed
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, client *core.Client, event *core.Event) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, outboundFromEvent(event)); err != nil {
		h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
		return err
	}
	return nil
}

// authDeadline fails the connection if it is still unauthenticated when the
// auth timeout elapses.
func (h *WSHandler) authDeadline(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	if h.cfg.AuthTimeout <= 0 {
		return nil
	}
	timer := time.NewTimer(h.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		if client.State() == core.StateUnauthenticated {
			h.log.Info().Str("client_id", client.ID).Msg("authentication timeout")
			_ = conn.Close(websocket.StatusPolicyViolation, errAuthTimeout.Error())
			return errAuthTimeout
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
