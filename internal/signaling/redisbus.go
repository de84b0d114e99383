package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is the production Bus: one Redis Pub/Sub channel per channel key.
// Redis preserves publish order per channel, which is all the consumers
// require (see Bus contract).
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan Event, func(), error) {
	ps := b.rdb.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round-trip so a dead broker fails here, not on
	// first delivery.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan Event, 16)
	var once sync.Once
	stop := func() {
		once.Do(func() { _ = ps.Close() })
	}

	go func() {
		defer close(out)
		src := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case msg, ok := <-src:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("signaling: dropping malformed bus event", "channel", channel, "err", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					stop()
					return
				}
			}
		}
	}()

	return out, stop, nil
}
