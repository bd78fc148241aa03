package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"perpdepth/internal/logger"
	"perpdepth/internal/snapshot"
)

// Sink receives encoded snapshots. *Client implements it.
type Sink interface {
	StoreAndPublish(ctx context.Context, key, channel string, payload []byte, ttl time.Duration) error
}

var _ Sink = (*Client)(nil)

// FeedConfig holds where and how often snapshots are pushed
type FeedConfig struct {
	Key      string
	Channel  string
	TTL      time.Duration
	Interval time.Duration
	Log      *logger.Log
}

// Feed periodically pushes the current snapshot to a Sink
type Feed struct {
	sink    Sink
	builder *snapshot.Builder
	cfg     FeedConfig
	log     *logger.Entry
}

// NewFeed creates a Feed
func NewFeed(sink Sink, builder *snapshot.Builder, cfg FeedConfig) *Feed {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	return &Feed{
		sink:    sink,
		builder: builder,
		cfg:     cfg,
		log: cfg.Log.WithComponent("redis_feed").WithFields(logger.Fields{
			"key":     cfg.Key,
			"channel": cfg.Channel,
		}),
	}
}

// Push builds one snapshot and hands it to the sink
func (f *Feed) Push(ctx context.Context, now time.Time) error {
	payload, err := json.Marshal(f.builder.Build(now))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.sink.StoreAndPublish(ctx, f.cfg.Key, f.cfg.Channel, payload, f.cfg.TTL)
}

// Run pushes a snapshot every interval until ctx is cancelled. Push failures
// are logged and retried on the next tick.
func (f *Feed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	f.log.WithField("interval", f.cfg.Interval.String()).Info("snapshot feed started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := f.Push(ctx, now); err != nil && ctx.Err() == nil {
				f.log.WithError(err).Warn("snapshot push failed")
			}
		}
	}
}
