package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/yoockh/callgate/internal/utils"
	"github.com/yoockh/callgate/internal/workers"
)

// MonitorHandler streams a call's live events to operators.
type MonitorHandler struct {
	redis    redis.UniversalClient
	upgrader websocket.Upgrader
}

func NewMonitorHandler(rdb redis.UniversalClient) *MonitorHandler {
	return &MonitorHandler{
		redis: rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *MonitorHandler) CallWS(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}

	callID := c.Param("call_id")
	if callID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "MonitorHandler.CallWS", "missing call_id", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote the response
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, workers.EventsChannel(callID))
	defer pubsub.Close()

	// reader: only watches for the client going away
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	msgs := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			wc.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			wc.mu.Unlock()
			if err != nil {
				return
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if err := wc.writeText([]byte(m.Payload)); err != nil {
				return
			}
		}
	}
}
