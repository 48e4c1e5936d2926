// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
	"github.com/unclebandit/draftdesk/internal/publisher"
	"github.com/unclebandit/draftdesk/internal/queue"
	"github.com/unclebandit/draftdesk/internal/repository"
	"github.com/unclebandit/draftdesk/internal/statemachine"
)

type DispatchConfig struct {
	MaxAttempts  int
	Backoff      Backoff
	ScanInterval time.Duration
	ScanBatch    int
}

// Dispatcher moves approved items to their publisher. Signals make it fast,
// the periodic scan makes it complete.
type Dispatcher struct {
	Store     repository.ContentStore
	Publisher publisher.Publisher
	Queue     queue.Queue
	Machine   statemachine.Machine
	Config    DispatchConfig
	Log       zerolog.Logger

	now func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewDispatcher(store repository.ContentStore, pub publisher.Publisher, q queue.Queue, cfg DispatchConfig, log zerolog.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = statemachine.DefaultMaxAttempts
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 100
	}
	return &Dispatcher{
		Store:     store,
		Publisher: pub,
		Queue:     q,
		Machine:   statemachine.New(cfg.MaxAttempts),
		Config:    cfg,
		Log:       log,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
}

// Run consumes dispatch signals and scans on an interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.Queue != nil {
		if err := d.Queue.Subscribe(ctx, queue.TopicDispatch, d.Dispatch); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(d.Config.ScanInterval)
	defer ticker.Stop()

	for {
		if _, err := d.Scan(ctx); err != nil && ctx.Err() == nil {
			d.Log.Error().Err(err).Msg("dispatch scan failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scan dispatches every item the store reports as due and returns how many it looked at.
func (d *Dispatcher) Scan(ctx context.Context) (int, error) {
	due, err := d.Store.ListDue(ctx, repository.DueFilter{
		Now:         d.now(),
		MaxAttempts: d.Config.MaxAttempts,
		Limit:       d.Config.ScanBatch,
	})
	if err != nil {
		return 0, err
	}
	for _, item := range due {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := d.Dispatch(ctx, item.ID); err != nil {
			d.Log.Error().Err(err).Str("item_id", item.ID).Msg("dispatch failed")
		}
	}
	if len(due) > 0 {
		d.Log.Debug().Int("count", len(due)).Msg("dispatch scan finished")
	}
	return len(due), nil
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[id]; busy {
		return false
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, id)
}

// Dispatch publishes one item if it is approved, or failed with a retry due.
// Repeated or concurrent calls for the same id are no-ops once the outcome is recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) error {
	if !d.claim(id) {
		return nil
	}
	defer d.release(id)

	log := d.Log.With().Str("item_id", id).Logger()

	item, err := d.Store.Get(ctx, id)
	if errors.Is(err, appErrors.ErrNotFound) {
		log.Warn().Msg("signal for unknown item")
		return nil
	}
	if err != nil {
		return err
	}

	if item.Status == model.StatusFailed {
		item, err = d.retry(ctx, item)
		if err != nil || item == nil {
			return err
		}
	}
	if item.Status != model.StatusApproved {
		return nil
	}
	if item.NextAttemptAt != nil && item.NextAttemptAt.After(d.now()) {
		log.Debug().Time("scheduled_at", *item.NextAttemptAt).Msg("item scheduled for later")
		return nil
	}

	receipt, sendErr := d.Publisher.Send(ctx, item, publisher.IdempotencyKey(item.ID))
	if sendErr != nil && ctx.Err() != nil {
		// shutting down; the attempt is not charged and the scan retries later
		return ctx.Err()
	}

	expected := item.Version
	now := d.now()
	item.DispatchAttempts++
	if sendErr == nil {
		item.Status, err = d.Machine.Transition(item, statemachine.ActionMarkDispatched)
		item.DispatchedAt = &now
		item.ExternalRef = receipt.ExternalRef
		item.LastError = ""
		item.NextAttemptAt = nil
	} else {
		item.Status, err = d.Machine.Transition(item, statemachine.ActionMarkFailed)
		item.LastError = sendErr.Error()
		item.NextAttemptAt = nil
		if item.DispatchAttempts < d.Config.MaxAttempts {
			next := now.Add(d.Config.Backoff.Delay(item.DispatchAttempts))
			item.NextAttemptAt = &next
		}
	}
	if err != nil {
		return err
	}

	updated, err := d.Store.Put(ctx, item, expected)
	if errors.Is(err, appErrors.ErrVersionConflict) {
		log.Info().Msg("outcome already recorded by another dispatcher")
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case updated.Status == model.StatusDispatched:
		log.Info().
			Int("attempt", updated.DispatchAttempts).
			Int64("version", updated.Version).
			Str("external_ref", updated.ExternalRef).
			Msg("item dispatched")
	case d.Machine.IsTerminal(updated):
		log.Error().
			Int("attempt", updated.DispatchAttempts).
			Str("last_error", updated.LastError).
			Msg("dispatch attempts exhausted, needs operator attention")
	default:
		log.Warn().
			Int("attempt", updated.DispatchAttempts).
			Str("last_error", updated.LastError).
			Time("next_attempt_at", *updated.NextAttemptAt).
			Msg("dispatch failed, retry scheduled")
	}
	return nil
}

// retry moves a failed item whose backoff elapsed back to approved. It returns
// nil when the item is not due or another writer got there first.
func (d *Dispatcher) retry(ctx context.Context, item *model.ContentItem) (*model.ContentItem, error) {
	if !d.Machine.Retryable(item) {
		return nil, nil
	}
	if item.NextAttemptAt != nil && item.NextAttemptAt.After(d.now()) {
		return nil, nil
	}
	next, err := d.Machine.Transition(item, statemachine.ActionRetry)
	if err != nil {
		return nil, err
	}
	expected := item.Version
	item.Status = next
	item.NextAttemptAt = nil

	updated, err := d.Store.Put(ctx, item, expected)
	if errors.Is(err, appErrors.ErrVersionConflict) {
		return nil, nil
	}
	return updated, err
}
