package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"streamta/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers the WebSocket endpoint and REST helpers on mux.
// indicators reports the active indicator set.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, indicators func() []model.StoredIndicator) {
	// WebSocket endpoint; ?last_ts=RFC3339Nano limits the initial state.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		var since time.Time
		if v := r.URL.Query().Get("last_ts"); v != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
				since = parsed
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "err", err)
			return
		}
		conn.EnableWriteCompression(true)
		hub.HandleConn(conn, since)
	})

	// REST: latest result per channel
	mux.HandleFunc("/api/results/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.LatestAll())
	})

	// REST: gap backfill, /api/missed?channel=...&from=N&to=M
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || err1 != nil || err2 != nil || from > to {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel, from and to are required, from <= to"})
			return
		}
		envelopes := hub.ReplayRange(channel, from, to)
		msgs := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			msgs[i] = e
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"channel":     channel,
			"channel_seq": hub.ChannelSeq(channel),
			"messages":    msgs,
		})
	})

	// REST: active indicator set
	mux.HandleFunc("/api/indicators", func(w http.ResponseWriter, r *http.Request) {
		var inds []model.StoredIndicator
		if indicators != nil {
			inds = indicators()
		}
		writeJSON(w, http.StatusOK, inds)
	})
}
