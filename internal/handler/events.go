package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"autopilot/internal/events"
)

// EventsHandler streams engine lifecycle events over a websocket. ?type= narrows the
// stream to one event type; the default is every event.
type EventsHandler struct {
	Hub    *events.Hub
	Logger *zap.Logger
	// Origins lists the hosts allowed to open the stream; empty means same origin only.
	Origins []string
}

func (h *EventsHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/events/ws", h.stream)
}

func (h *EventsHandler) stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.Origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	eventType := c.DefaultQuery("type", events.All)
	ch := h.Hub.Subscribe(eventType, 64)
	defer h.Hub.Unsubscribe(ch)

	// client messages are ignored; CloseRead cancels ctx when the peer goes away
	ctx := conn.CloseRead(c.Request.Context())
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "hub closed")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if h.Logger != nil {
					h.Logger.Debug("events: write failed", zap.Error(err))
				}
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
