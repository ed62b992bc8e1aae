// Package gateway fans indicator results out to WebSocket clients.
//
// Results arrive either in-process from the engine or from Redis PubSub
// (pub:ind:*). Every message is wrapped in an envelope carrying a global and
// a per-channel sequence number; clients detect gaps with the latter and
// backfill them from a per-channel replay buffer.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"streamta/internal/metrics"
	"streamta/internal/model"
)

const (
	clientSendBuffer = 256
	replayCapacity   = 500
)

// Hub manages WebSocket clients and result fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	prom *metrics.Metrics
	now  func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a new Hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		prom:        m,
		now:         time.Now,
	}
}

// Run broadcasts results from resultCh until ctx is cancelled or resultCh is
// closed.
func (h *Hub) Run(ctx context.Context, resultCh <-chan model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-resultCh:
			if !ok {
				return
			}
			h.Broadcast(r.PubSubChannel(), r.JSON())
		}
	}
}

// RunPubSub subscribes to every result channel on Redis and broadcasts what
// it receives. Blocks until ctx is cancelled.
func (h *Hub) RunPubSub(ctx context.Context, rdb *goredis.Client) {
	pubsub := rdb.PSubscribe(ctx, "pub:ind:*")
	defer pubsub.Close()

	slog.Info("gateway subscribed to redis result channels")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Broadcast sends data on a channel to all subscribed clients.
// data must be a JSON document; it is embedded in the envelope unchanged.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	seq := h.seq
	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayCapacity)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	// Fan out to subscribed clients
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			// slow client, drop
		}
	}
}

// buildEnvelope hand-crafts
// {"channel":...,"data":...,"ts":...,"seq":N,"channel_seq":M}.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// HandleConn registers an upgraded connection and starts its pumps.
// Messages newer than since (zero for all) are sent first.
func (h *Hub) HandleConn(conn *websocket.Conn, since time.Time) {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Inc()
	}
	slog.Info("ws client connected", "clients", count)

	client.sendInitialState(since)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Dec()
	}
}

// LatestAll returns a snapshot of the latest message per channel.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	return rb.Range(fromSeq, toSeq)
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
