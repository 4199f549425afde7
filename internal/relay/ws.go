package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/solharvest/dlmm-harvester/internal/events"
)

// wsFrame is the JSON envelope every push-channel frame uses (spec.md
// §6): {type, data, timestamp}.
type wsFrame struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// wsClient owns one connected push client's outbound queue. A slow or
// unresponsive client only drops frames destined for it — it never blocks
// broadcast for everyone else.
type wsClient struct {
	conn *websocket.Conn
	out  chan wsFrame
	log  *zap.Logger
}

func newWSClient(conn *websocket.Conn, log *zap.Logger) *wsClient {
	return &wsClient{conn: conn, out: make(chan wsFrame, 64), log: log}
}

func (c *wsClient) send(ev events.Event) {
	frame := wsFrame{Type: string(ev.Kind), Data: ev.Payload, Timestamp: ev.Timestamp}
	select {
	case c.out <- frame:
	default:
	}
}

// writeLoop drains out to the socket until it closes or a write fails.
func (c *wsClient) writeLoop() {
	for frame := range c.out {
		if err := c.conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

// readLoop exists only to detect client-initiated close/error; the push
// channel carries no inbound application frames.
func (c *wsClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(conn, r.log)
	r.addClient(client)
	defer r.removeClient(client)
	defer conn.Close()

	history := r.replayTail()
	if err := conn.WriteJSON(wsFrame{Type: "feedHistory", Data: history, Timestamp: time.Now()}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		client.writeLoop()
		close(done)
	}()

	client.readLoop()
	close(client.out)
	<-done
}
