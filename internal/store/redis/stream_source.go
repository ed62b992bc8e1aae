package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"streamta/internal/model"
)

// StreamSourceConfig configures a StreamSource.
type StreamSourceConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string   // consumer group name, e.g. "indengine"
	ConsumerName  string   // unique consumer name, e.g. hostname
	Streams       []string // bar stream keys, e.g. "bar:60s:NSE:2885"
}

// StreamSource reads bars from Redis Streams via a consumer group.
// Delivery is at-least-once: a message is acknowledged after its bar has
// been handed to the output channel.
type StreamSource struct {
	client        *goredis.Client
	streams       []string
	consumerGroup string
	consumerName  string
}

// NewStreamSource connects to Redis and pings the server.
func NewStreamSource(cfg StreamSourceConfig) (*StreamSource, error) {
	if len(cfg.Streams) == 0 {
		return nil, errors.New("redis stream source: no streams configured")
	}
	client, err := dial(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = "indengine"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}

	slog.Info("redis stream source connected",
		"addr", cfg.Addr, "group", group, "consumer", consumer, "streams", len(cfg.Streams))
	return &StreamSource{
		client:        client,
		streams:       cfg.Streams,
		consumerGroup: group,
		consumerName:  consumer,
	}, nil
}

// StreamKeys returns the bar stream key of every (tf, exchange:token) pair.
func StreamKeys(tfs []int, instruments []string) []string {
	keys := make([]string, 0, len(tfs)*len(instruments))
	for _, tf := range tfs {
		for _, inst := range instruments {
			exchange, token, ok := strings.Cut(inst, ":")
			if !ok {
				continue
			}
			b := model.Bar{TF: tf, Exchange: exchange, Token: token}
			keys = append(keys, b.StreamKey())
		}
	}
	return keys
}

// EnsureConsumerGroup creates the consumer group on every stream if it doesn't
// exist. Fresh groups start at "$" (only new messages).
func (s *StreamSource) EnsureConsumerGroup(ctx context.Context) error {
	for _, stream := range s.streams {
		err := s.client.XGroupCreateMkStream(ctx, stream, s.consumerGroup, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Run ensures the consumer group, redelivers pending messages from a previous
// run, then consumes new bars until ctx is cancelled.
func (s *StreamSource) Run(ctx context.Context, out chan<- model.Bar) error {
	if err := s.EnsureConsumerGroup(ctx); err != nil {
		return err
	}
	if err := s.RecoverPending(ctx, out); err != nil {
		return err
	}
	return s.Consume(ctx, out)
}

// Consume reads bars with XREADGROUP and sends them to out. Returns when ctx
// is cancelled.
func (s *StreamSource) Consume(ctx context.Context, out chan<- model.Bar) error {
	// Build stream args: [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(s.streams)*2)
	for i, st := range s.streams {
		args[i] = st
		args[len(s.streams)+i] = ">"
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := s.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    s.consumerGroup,
			Consumer: s.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			slog.Warn("xreadgroup failed", "err", err)
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
			}
			continue
		}

		for _, stream := range results {
			if err := s.deliver(ctx, stream.Stream, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// RecoverPending redelivers messages claimed but not acknowledged by this
// consumer group, e.g. after a crash.
func (s *StreamSource) RecoverPending(ctx context.Context, out chan<- model.Bar) error {
	for _, stream := range s.streams {
		for {
			pending, err := s.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  s.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := s.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    s.consumerGroup,
				Consumer: s.consumerName,
				MinIdle:  0,
				Messages: ids,
			}).Result()
			if err != nil {
				slog.Warn("xclaim failed", "stream", stream, "err", err)
				break
			}
			// A trimmed message stays pending but XCLAIM returns nothing for
			// it; ack it so the pending list shrinks.
			if missing := missingIDs(ids, claimed); len(missing) > 0 {
				if err := s.client.XAck(ctx, stream, s.consumerGroup, missing...).Err(); err != nil {
					slog.Warn("xack of trimmed pending entries failed", "stream", stream, "err", err)
					break
				}
				slog.Warn("dropped pending entries with no message", "stream", stream, "count", len(missing))
			}
			if err := s.deliver(ctx, stream, claimed, out); err != nil {
				return err
			}
			if len(claimed) > 0 {
				slog.Info("recovered pending bars", "stream", stream, "count", len(claimed))
			}
		}
	}
	return nil
}

// missingIDs returns the ids that have no message in claimed, in order.
func missingIDs(ids []string, claimed []goredis.XMessage) []string {
	got := make(map[string]bool, len(claimed))
	for _, m := range claimed {
		got[m.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !got[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func (s *StreamSource) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.Bar) error {
	for _, msg := range msgs {
		bar, err := decodeBar(msg)
		if err != nil {
			slog.Warn("dropping undecodable bar", "stream", stream, "id", msg.ID, "err", err)
			// ACK even on bad message to avoid poison pill
			s.client.XAck(ctx, stream, s.consumerGroup, msg.ID)
			continue
		}

		select {
		case out <- bar:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.client.XAck(ctx, stream, s.consumerGroup, msg.ID)
	}
	return nil
}

// decodeBar parses the JSON bar held in a stream message's "data" field.
func decodeBar(msg goredis.XMessage) (model.Bar, error) {
	var bar model.Bar
	data, ok := msg.Values["data"].(string)
	if !ok {
		return bar, errors.New("missing data field")
	}
	if err := json.Unmarshal([]byte(data), &bar); err != nil {
		return bar, err
	}
	return bar, nil
}

// Client returns the underlying Redis client for health checks.
func (s *StreamSource) Client() *goredis.Client { return s.client }

// Close closes the Redis client.
func (s *StreamSource) Close() error {
	return s.client.Close()
}
