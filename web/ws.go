package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gogreen/mq/mq"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the app is not a browser origin, tokens guard the stream
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type      string        `json:"type"`
	Payload   mq.ScoreEvent `json:"payload"`
	Timestamp time.Time     `json:"timestamp"`
}

// ScoreStream pushes the caller's credited scores over a websocket.
func (h *Handler) ScoreStream(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	if _, caller := Caller(c); caller != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "can only follow your own score"})
		return
	}
	q := h.app.queue.GetScoreEventQueue(mq.ActionScoreCredited)
	if q == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "score events unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed for %s: %v", userID, err)
		return
	}
	defer conn.Close()

	// hijacked connections outlive http.Server.Shutdown, so follow the app
	ctx, cancel := context.WithCancel(h.app.ctx)
	defer cancel()
	defer func() {
		if h.app.ctx.Err() != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		}
	}()

	events := make(chan mq.ScoreEvent)
	mq.SubscribeProcessor(userID, ctx, q, func(ev mq.ScoreEvent) (mq.ScoreEvent, bool, error) {
		return ev, false, nil
	}, events)

	// the read loop only notices the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsMessage{Type: mq.ActionScoreCredited.String(), Payload: ev, Timestamp: time.Now().UTC()}); err != nil {
				log.Printf("Websocket write to %s failed: %v", userID, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
