package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
	Release(ctx context.Context, ids []int64) error
}

type Relay struct {
	log       *zap.Logger
	store     Store
	dispatch  *Dispatcher
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
	now       func() time.Time
}

func NewRelay(log *zap.Logger, store Store, dispatch *Dispatcher, relayID string) *Relay {
	return &Relay{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     30 * time.Second,
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", zap.String("relay_id", r.relayID))
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("relay lock batch error", zap.Error(err))
			}
		}
	}
}

// RunOnce relays one batch and returns how many events were sent. Once an
// event fails, later events of the same aggregate are released unsent so
// they cannot overtake it. The lease is renewed when half of it has passed.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	renewAt := r.now().Add(r.lease / 2)
	blocked := map[string]bool{}
	var sent, held []int64
	for i, e := range events {
		if r.now().After(renewAt) {
			if err := r.store.ExtendLease(ctx, r.relayID, pendingIDs(events[i:]), r.lease); err != nil {
				r.log.Error("relay extend lease error", zap.Error(err))
				break
			}
			renewAt = r.now().Add(r.lease / 2)
		}
		if blocked[e.AggregateID] {
			held = append(held, e.ID)
			continue
		}
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			blocked[e.AggregateID] = true
			if mErr := r.store.MarkFailed(ctx, e.ID, err.Error()); mErr != nil {
				r.log.Error("relay mark failed error", zap.Int64("event_id", e.ID), zap.Error(mErr))
			}
			continue
		}
		sent = append(sent, e.ID)
	}
	if len(held) > 0 {
		if err := r.store.Release(ctx, held); err != nil {
			r.log.Error("relay release error", zap.Error(err))
		}
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			r.log.Error("relay mark sent error", zap.Error(err))
			return 0, err
		}
	}
	return len(sent), nil
}

func pendingIDs(events []Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}
