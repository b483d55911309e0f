package store

import "context"

const insertDomainEvent = `-- name: InsertDomainEvent :one
INSERT INTO domain_events (topic, aggregate_id, payload) VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at, published_at
`

type InsertDomainEventParams struct {
	Topic       string
	AggregateID string
	Payload     []byte
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	var e DomainEvent
	err := q.db.QueryRow(ctx, insertDomainEvent, arg.Topic, arg.AggregateID, arg.Payload).Scan(
		&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt, &e.PublishedAt,
	)
	return e, err
}

const listUnpublishedEvents = `-- name: ListUnpublishedEvents :many
SELECT id, topic, aggregate_id, payload, occurred_at, published_at FROM domain_events
WHERE published_at IS NULL
ORDER BY id
LIMIT $1
`

func (q *Queries) ListUnpublishedEvents(ctx context.Context, limit int32) ([]DomainEvent, error) {
	rows, err := q.db.Query(ctx, listUnpublishedEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DomainEvent
	for rows.Next() {
		var e DomainEvent
		if err := rows.Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt, &e.PublishedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const markEventPublished = `-- name: MarkEventPublished :exec
UPDATE domain_events SET published_at = now() WHERE id = $1 AND published_at IS NULL
`

func (q *Queries) MarkEventPublished(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, markEventPublished, id)
	return err
}
