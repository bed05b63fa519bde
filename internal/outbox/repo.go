package outbox

import (
	"context"
	"time"

	"github.com/ariefcatur/go-stock-ledger/internal/postgres"
)

// MaxRetries bounds how often a failed event is picked up again.
const MaxRetries = 5

// Repo is the PostgreSQL outbox. Enqueue runs on the caller's Querier; the
// relay-side methods open their own transactions.
type Repo struct{ DB postgres.Transactor }

func (Repo) Enqueue(ctx context.Context, q postgres.Querier, e Event) error {
	headers := e.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO outbox(aggregate_type, aggregate_id, type, payload, headers)
		VALUES ($1, $2, $3, $4, $5)`,
		e.AggregateType, e.AggregateID, e.Type, e.Payload, headers)
	return postgres.MapError(err)
}

// LockBatch claims up to batchSize events for relayID. Pending events, failed
// events under MaxRetries and in-progress events whose lease expired qualify.
func (r Repo) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	var events []Event
	err := r.DB.InTx(ctx, func(q postgres.Querier) error {
		rows, err := q.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, type, payload, headers, created_at, retry_count
			FROM outbox
			WHERE status = 'pending'
			   OR (status = 'failed' AND retry_count < $2)
			   OR (status = 'in_progress' AND lease_until < now())
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1`, batchSize, MaxRetries)
		if err != nil {
			return postgres.MapError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var e Event
			if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Headers, &e.CreatedAt, &e.RetryCount); err != nil {
				return postgres.MapError(err)
			}
			e.Status = StatusInProgress
			e.RelayID = relayID
			events = append(events, e)
		}
		if err := rows.Err(); err != nil {
			return postgres.MapError(err)
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		_, err = q.Exec(ctx, `
			UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + make_interval(secs => $2)
			WHERE id = ANY($3)`, relayID, lease.Seconds(), ids)
		return postgres.MapError(err)
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r Repo) MarkSent(ctx context.Context, ids []int64) error {
	_, err := r.DB.Conn().Exec(ctx, `UPDATE outbox SET status='sent', lease_until=NULL WHERE id = ANY($1)`, ids)
	return postgres.MapError(err)
}

func (r Repo) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := r.DB.Conn().Exec(ctx, `
		UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1, lease_until=NULL
		WHERE id=$1`, id, errMsg)
	return postgres.MapError(err)
}

// ExtendLease pushes the lease of ids forward while relayID still owns them.
func (r Repo) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := r.DB.Conn().Exec(ctx, `
		UPDATE outbox SET lease_until=now() + make_interval(secs => $1)
		WHERE id = ANY($2) AND relay_id=$3 AND status='in_progress'`, lease.Seconds(), ids, relayID)
	return postgres.MapError(err)
}

// Release hands events back as pending without counting a retry.
func (r Repo) Release(ctx context.Context, ids []int64) error {
	_, err := r.DB.Conn().Exec(ctx, `
		UPDATE outbox SET status='pending', relay_id=NULL, lease_until=NULL
		WHERE id = ANY($1) AND status='in_progress'`, ids)
	return postgres.MapError(err)
}
