package gateway

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscriptions keyed by "symbol:tf". No subscriptions means everything.
	subMu sync.RWMutex
	subs  map[string]Subscription
}

// Subscription selects result channels for one instrument.
type Subscription struct {
	Symbol     string   `json:"symbol"`               // "exchange:token"
	TF         int      `json:"tf"`                   // 0 matches every TF
	Indicators []string `json:"indicators,omitempty"` // empty matches every indicator
}

func (s Subscription) key() string {
	return s.Symbol + ":" + strconv.Itoa(s.TF)
}

// clientMsg is a message sent by a client.
type clientMsg struct {
	Type  string `json:"type"` // "SUBSCRIBE", "UNSUBSCRIBE" or "ping"
	ReqID string `json:"req_id,omitempty"`
	Ping  int64  `json:"ping,omitempty"`
	Subscription
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
		subs: make(map[string]Subscription),
	}
}

func (c *Client) sendInitialState(since time.Time) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !since.IsZero() && !entry.TS.After(since) {
			continue
		}
		envelope, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		c.trySend(envelope)
	}
}

func (c *Client) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "invalid message: "+err.Error())
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg clientMsg) {
	switch strings.ToUpper(msg.Type) {
	case "SUBSCRIBE":
		if _, _, ok := strings.Cut(msg.Symbol, ":"); !ok || msg.TF < 0 {
			c.sendError(msg.ReqID, "symbol must be exchange:token and tf >= 0")
			return
		}
		c.subMu.Lock()
		c.subs[msg.Subscription.key()] = msg.Subscription
		c.subMu.Unlock()
		c.sendAck("subscribed", msg.ReqID)
		slog.Debug("ws client subscribed", "symbol", msg.Symbol, "tf", msg.TF, "indicators", msg.Indicators)

	case "UNSUBSCRIBE":
		c.subMu.Lock()
		delete(c.subs, msg.Subscription.key())
		c.subMu.Unlock()
		c.sendAck("unsubscribed", msg.ReqID)

	case "PING":
		pong, _ := json.Marshal(map[string]interface{}{
			"type":      "pong",
			"ping":      msg.Ping,
			"server_ts": time.Now().UnixMilli(),
		})
		c.trySend(pong)

	default:
		c.sendError(msg.ReqID, "unknown message type "+strconv.Quote(msg.Type))
	}
}

func (c *Client) sendAck(kind, reqID string) {
	data, _ := json.Marshal(map[string]string{"type": kind, "req_id": reqID})
	c.trySend(data)
}

func (c *Client) sendError(reqID, message string) {
	data, _ := json.Marshal(map[string]string{"type": "error", "req_id": reqID, "error": message})
	c.trySend(data)
}

// matchesChannel reports whether a channel matches any of this client's
// subscriptions.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}
	parsed, ok := parseChannel(channel)
	if !ok {
		return true // not a result channel, always deliver
	}

	symbol := parsed.exchange + ":" + parsed.token
	for _, sub := range c.subs {
		if sub.Symbol != symbol {
			continue
		}
		if sub.TF != 0 && sub.TF != parsed.tf {
			continue
		}
		if len(sub.Indicators) == 0 || slices.Contains(sub.Indicators, parsed.name) {
			return true
		}
	}
	return false
}

// resultChannel holds the parts of "pub:ind:{name}:{tf}s:{exchange}:{token}".
type resultChannel struct {
	name     string
	tf       int
	exchange string
	token    string
}

func parseChannel(channel string) (resultChannel, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 6 || parts[0] != "pub" || parts[1] != "ind" {
		return resultChannel{}, false
	}
	tf, err := strconv.Atoi(strings.TrimSuffix(parts[3], "s"))
	if err != nil {
		return resultChannel{}, false
	}
	return resultChannel{name: parts[2], tf: tf, exchange: parts[4], token: parts[5]}, true
}
