package realtime

import (
	"context"
	"log/slog"
)

// Refresher reloads a view. *counterparty.List satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Invalidator turns events into refreshes of a view. Events arriving while a
// refresh is pending are coalesced into it.
type Invalidator struct {
	target Refresher
	signal chan struct{}
	logger *slog.Logger
	// OnRefresh, when set, is called after every refresh attempt.
	OnRefresh func(err error)
}

// NewInvalidator creates an Invalidator for target.
func NewInvalidator(target Refresher, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		target: target,
		signal: make(chan struct{}, 1),
		logger: logger,
	}
}

// Bind registers the invalidator on d for events, LedgerEvents when none
// are given.
func (i *Invalidator) Bind(d *Dispatcher, events ...string) {
	if len(events) == 0 {
		events = LedgerEvents
	}
	d.On(func(msg Message) { i.Notify() }, events...)
}

// Notify schedules a refresh. It never blocks.
func (i *Invalidator) Notify() {
	select {
	case i.signal <- struct{}{}:
	default:
	}
}

// Run performs scheduled refreshes until ctx is cancelled.
func (i *Invalidator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.signal:
			err := i.target.Refresh(ctx)
			if err != nil && ctx.Err() == nil {
				i.logger.Warn("refresh after event failed", "error", err)
			}
			if i.OnRefresh != nil {
				i.OnRefresh(err)
			}
		}
	}
}
