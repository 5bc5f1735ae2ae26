// Package flowfeed streams a device's flow updates over a WebSocket.
package flowfeed

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
)

// Subscriber hands out per-device channels of JSON-encoded updates.
type Subscriber interface {
	Subscribe(deviceID string) chan []byte
	Unsubscribe(deviceID string, ch chan []byte)
}

type Handler struct {
	logger *slog.Logger
	subs   Subscriber
	device func(*http.Request) string
}

// NewHandler serves updates for the device that device resolves the request to.
func NewHandler(logger *slog.Logger, subs Subscriber, device func(*http.Request) string) *Handler {
	return &Handler{logger: logger, subs: subs, device: device}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.feed)
	return r
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	deviceID := h.device(r)
	if deviceID == "" {
		http.Error(w, "unknown device", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch := h.subs.Subscribe(deviceID)
	defer h.subs.Unsubscribe(deviceID, ch)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	// The feed is one-way; CloseRead handles pings and the client's close.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case data := <-ch:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
