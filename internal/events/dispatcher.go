package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-klinik/internal/obs"
	"github.com/noah-isme/backend-klinik/internal/store"
)

// Enqueuer is the subset of *asynq.Client used by the dispatcher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PublishMarker flags outbox rows once they reached the queue.
type PublishMarker interface {
	MarkEventPublished(ctx context.Context, id int64) error
}

// Dispatcher publishes outbox events as asynq tasks.
type Dispatcher struct {
	Client   Enqueuer
	Marker   PublishMarker
	Queue    string
	MaxRetry int
	Logger   zerolog.Logger
}

// TaskID derives the deduplicating asynq task id of an outbox event.
func TaskID(eventID int64) string {
	return "event-" + strconv.FormatInt(eventID, 10)
}

// Schedule enqueues ev and marks it published. A task id conflict means an earlier attempt
// already enqueued the event, which counts as success.
func (d *Dispatcher) Schedule(ctx context.Context, ev store.DomainEvent) error {
	if d == nil || d.Client == nil {
		return errors.New("events: dispatcher not configured")
	}
	opts := []asynq.Option{asynq.TaskID(TaskID(ev.ID)), asynq.Timeout(30 * time.Second)}
	if d.Queue != "" {
		opts = append(opts, asynq.Queue(d.Queue))
	}
	if d.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(d.MaxRetry))
	}
	task := asynq.NewTask(TaskType(ev.Topic), ev.Payload)
	if _, err := d.Client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		obs.RecordOutboxDispatch(ev.Topic, "error")
		return fmt.Errorf("events: enqueue %d: %w", ev.ID, err)
	}
	obs.RecordOutboxDispatch(ev.Topic, "ok")
	if d.Marker != nil {
		if err := d.Marker.MarkEventPublished(ctx, ev.ID); err != nil {
			return fmt.Errorf("events: mark %d published: %w", ev.ID, err)
		}
	}
	d.Logger.Debug().Int64("event_id", ev.ID).Str("topic", ev.Topic).Msg("event dispatched")
	return nil
}

// LogNotifier writes one log line per published event.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev store.DomainEvent) error {
	n.Logger.Info().Int64("event_id", ev.ID).Str("topic", ev.Topic).Str("aggregate_id", ev.AggregateID).Msg("domain event published")
	return nil
}
