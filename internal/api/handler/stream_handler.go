package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/metacode/fiches-api/internal/infrastructure/realtime"
)

const (
	transportWebSocket = "websocket"
	transportSSE       = "sse"

	writeTimeout      = 5 * time.Second
	heartbeatInterval = 25 * time.Second
)

// SubscriberRegistry is the part of the realtime registry the push
// transports need.
type SubscriberRegistry interface {
	Add(ctx context.Context, transport string) (*realtime.Subscriber, error)
	Remove(id string) bool
}

// StreamHandler serves the push connections that receive change events.
type StreamHandler struct {
	registry SubscriberRegistry
	origins  []string
	logger   zerolog.Logger
}

// NewStreamHandler returns a handler accepting WebSocket upgrades from the
// given origins. A "*" entry accepts any origin.
func NewStreamHandler(registry SubscriberRegistry, allowedOrigins []string, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		origins:  originPatterns(allowedOrigins),
		logger:   logger,
	}
}

// WebSocket handles GET /events/ws. Every change event is sent as a JSON text
// frame {"event": name, "data": payload}; a "ready" frame follows the upgrade.
//
// @Summary      Subscribe to record changes over WebSocket
// @Tags         events
// @Success      101
// @Router       /events/ws [get]
func (h *StreamHandler) WebSocket(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade rejected")
		return nil
	}
	defer conn.CloseNow()

	// Clients never send anything; CloseRead cancels ctx when they hang up.
	ctx := conn.CloseRead(c.Request().Context())

	sub, err := h.registry.Add(ctx, transportWebSocket)
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return nil
	}
	defer h.registry.Remove(sub.ID)

	log := h.logger.With().Str("sub_id", sub.ID).Str("transport", transportWebSocket).Logger()
	log.Info().Msg("subscriber connected")
	defer log.Info().Msg("subscriber disconnected")

	if err := writeFrame(ctx, conn, realtime.Message{Event: "ready"}); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return nil
		case msg, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return nil
			}
			if err := writeFrame(ctx, conn, msg); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return nil
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg realtime.Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// Events handles GET /events as a Server-Sent Events stream carrying the same
// events as the WebSocket endpoint.
//
// @Summary      Subscribe to record changes over Server-Sent Events
// @Tags         events
// @Produce      text/event-stream
// @Success      200
// @Router       /events [get]
func (h *StreamHandler) Events(c echo.Context) error {
	ctx := c.Request().Context()

	sub, err := h.registry.Add(ctx, transportSSE)
	if err != nil {
		if errors.Is(err, realtime.ErrClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "server shutting down")
		}
		return err
	}
	defer h.registry.Remove(sub.ID)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := h.logger.With().Str("sub_id", sub.ID).Str("transport", transportSSE).Logger()
	log.Info().Msg("subscriber connected")
	defer log.Info().Msg("subscriber disconnected")

	if err := writeSSE(w, realtime.Message{Event: "ready"}); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case msg, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeSSE(w, msg); err != nil {
				log.Debug().Err(err).Msg("sse write failed")
				return nil
			}
		}
	}
}

func writeSSE(w *echo.Response, msg realtime.Message) error {
	data := msg.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// originPatterns reduces configured origins to the host patterns the
// WebSocket handshake matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
		}
		out = append(out, o)
	}
	return out
}
