package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/store"
)

// OutboxReader lists events still waiting for publication.
type OutboxReader interface {
	ListUnpublishedEvents(ctx context.Context, limit int32) ([]store.DomainEvent, error)
}

// Relay republishes outbox events whose post-commit dispatch failed.
type Relay struct {
	Store     OutboxReader
	Scheduler Scheduler
	Batch     int
	Interval  time.Duration
	Logger    zerolog.Logger
}

// WorkOnce publishes up to limit pending events and reports how many were dispatched.
func (r *Relay) WorkOnce(ctx context.Context, limit int) (int, error) {
	if r == nil || r.Store == nil || r.Scheduler == nil {
		return 0, errors.New("events: relay not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	pending, err := r.Store.ListUnpublishedEvents(ctx, int32(limit))
	if err != nil {
		return 0, err
	}
	sent := 0
	var joined error
	for _, ev := range pending {
		if err := r.Scheduler.Schedule(ctx, ev); err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		sent++
	}
	return sent, joined
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.WorkOnce(ctx, r.Batch)
			if err != nil {
				r.Logger.Warn().Err(err).Int("dispatched", n).Msg("outbox relay pass incomplete")
				continue
			}
			if n > 0 {
				r.Logger.Info().Int("dispatched", n).Msg("outbox relay pass")
			}
		}
	}
}
