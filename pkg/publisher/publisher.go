// Package publisher forwards accepted opportunities to a Redis Pub/Sub
// channel so downstream consumers (dashboards, alerting) can subscribe
// without touching the engine.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// Config holds the Redis publisher parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Publisher publishes opportunities to Redis. The engine callback only
// enqueues into a buffered channel; network I/O happens on the publisher's
// own goroutine so the detection thread never blocks.
type Publisher struct {
	rdb     *redis.Client
	channel string
	queue   chan types.Opportunity
	done    chan struct{}
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	p := &Publisher{
		rdb:     rdb,
		channel: cfg.Channel,
		queue:   make(chan types.Opportunity, 1024),
		done:    make(chan struct{}),
	}
	go p.run(ctx)
	return p, nil
}

// Callback returns an engine opportunity callback that enqueues for
// publishing, dropping when the queue is full.
func (p *Publisher) Callback() func(*types.Opportunity) {
	return func(opp *types.Opportunity) {
		select {
		case p.queue <- *opp:
		default:
			log.Warn().Str("id", opp.ID).Msg("publisher queue full, opportunity dropped")
		}
	}
}

// run drains the queue into Redis until the context is cancelled or Close is
// called.
func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case opp := <-p.queue:
			payload, err := json.Marshal(&opp)
			if err != nil {
				log.Error().Err(err).Str("id", opp.ID).Msg("marshal opportunity failed")
				continue
			}
			if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
				log.Warn().Err(err).Str("channel", p.channel).Msg("redis publish failed")
			}
		}
	}
}

// Close stops the publishing goroutine and closes the client.
func (p *Publisher) Close() error {
	close(p.done)
	return p.rdb.Close()
}
