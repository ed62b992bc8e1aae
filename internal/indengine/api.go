package indengine

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"streamta/internal/gateway"
	"streamta/internal/model"
)

// ConfigChannel is the Redis PubSub channel carrying indicator set updates
// as a JSON array of stored indicators.
const ConfigChannel = "config:indicators"

// Handler returns the gateway routes plus POST /reload.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, svc.hub, svc.activeIndicators)
	mux.HandleFunc("/reload", svc.handleReload)
	return mux
}

// handleReload handles POST /reload for live config updates via HTTP.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var stored []model.StoredIndicator
	if err := json.NewDecoder(r.Body).Decode(&stored); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := svc.Reload(ctx, stored); err != nil {
		http.Error(w, "reload: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"indicators": svc.activeIndicators(),
	})
}

// subscribeConfig listens on ConfigChannel and reloads on every message.
// Blocks until ctx is done.
func (svc *Service) subscribeConfig(ctx context.Context, rdb *goredis.Client) {
	pubsub := rdb.Subscribe(ctx, ConfigChannel)
	defer pubsub.Close()
	svc.log.Info("subscribed for dynamic reload", "channel", ConfigChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			svc.applyConfigMessage(ctx, msg.Payload)
		}
	}
}

func (svc *Service) applyConfigMessage(ctx context.Context, payload string) {
	var stored []model.StoredIndicator
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		svc.log.Warn("bad config update", "channel", ConfigChannel, "err", err)
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := svc.Reload(rctx, stored); err != nil {
		svc.log.Warn("config update rejected", "err", err)
	}
}
