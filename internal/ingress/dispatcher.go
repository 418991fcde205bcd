package ingress

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"fenrir/internal/book"
	"fenrir/internal/bus"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// Aggregator is the subset of aggregate.Aggregator the dispatcher needs,
// kept as an interface so this package doesn't import aggregate
// directly and tests can stub it.
type Aggregator interface {
	Ingest(ctx context.Context, t model.Trade) error
}

// BookResolver resolves the live book for a symbol, lazily creating it
// if necessary. lifecycle.Manager.Book satisfies this.
type BookResolver interface {
	Book(symbol fxpt.Symbol) *book.Book
}

// SnapshotRequester is notified when a delta arrives with a
// prev_sequence that doesn't match the book's current sequence, per
// spec.md §6 "otherwise the consumer requests a fresh snapshot". A nil
// requester just drops the delta and logs.
type SnapshotRequester interface {
	RequestSnapshot(symbol fxpt.Symbol)
}

// Dispatcher routes normalized MarketEvents into the order-book engine
// and aggregator and republishes them on per-kind bus topics for
// downstream subscribers (spec.md §4 flow: "order-book deltas fan out
// to subscribers").
type Dispatcher struct {
	books      BookResolver
	aggregator Aggregator
	snapshots  SnapshotRequester

	trades    *bus.Topic[model.Trade]
	deltas    *bus.Topic[book.Delta]
	snapshot  *bus.Topic[book.Snapshot]
}

// Topics bundles the (optional) fan-out topics a Dispatcher publishes
// to. Any field left nil is simply not published to.
type Topics struct {
	Trades    *bus.Topic[model.Trade]
	Deltas    *bus.Topic[book.Delta]
	Snapshots *bus.Topic[book.Snapshot]
}

// NewDispatcher constructs a Dispatcher. snapshots may be nil, in which
// case a sequence gap is only logged.
func NewDispatcher(books BookResolver, aggregator Aggregator, snapshots SnapshotRequester, topics Topics) *Dispatcher {
	return &Dispatcher{
		books:      books,
		aggregator: aggregator,
		snapshots:  snapshots,
		trades:     topics.Trades,
		deltas:     topics.Deltas,
		snapshot:   topics.Snapshots,
	}
}

// Dispatch routes a single event. Safe to call concurrently for
// different symbols; events for the same symbol should be delivered in
// arrival order by the caller, since book delta application is
// sequence-sensitive.
func (d *Dispatcher) Dispatch(ctx context.Context, ev MarketEvent) error {
	switch ev.Kind {
	case KindTrade:
		return d.dispatchTrade(ctx, ev.Trade)
	case KindBookSnapshot:
		d.dispatchSnapshot(ev.Snapshot)
		return nil
	case KindBookDelta:
		return d.dispatchDelta(ev.Delta)
	default:
		return nil
	}
}

// Run drains in until ctx is done or in is closed, dispatching every
// event in order. Intended to be run as the single-writer goroutine for
// one symbol or one adapter's event stream (spec.md §5 "a per-symbol
// single-writer queue").
func (d *Dispatcher) Run(ctx context.Context, in <-chan MarketEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			if err := d.Dispatch(ctx, ev); err != nil {
				log.Error().Err(err).Uint32("symbol", uint32(ev.Symbol)).Str("kind", ev.Kind.String()).Msg("ingress: dispatch failed")
			}
		}
	}
}

func (d *Dispatcher) dispatchTrade(ctx context.Context, t model.Trade) error {
	if d.aggregator != nil {
		if err := d.aggregator.Ingest(ctx, t); err != nil {
			return err
		}
	}
	if d.trades != nil {
		d.trades.Publish(t)
	}
	return nil
}

func (d *Dispatcher) dispatchSnapshot(s book.Snapshot) {
	b := d.books.Book(s.Symbol)
	b.ApplySnapshot(s)
	if d.snapshot != nil {
		d.snapshot.Publish(s)
	}
}

func (d *Dispatcher) dispatchDelta(delta book.Delta) error {
	b := d.books.Book(delta.Symbol)
	if err := b.ApplyDelta(delta); err != nil {
		var gap *book.SequenceGapError
		if errors.As(err, &gap) {
			log.Warn().Uint32("symbol", uint32(delta.Symbol)).Err(err).Msg("ingress: sequence gap, requesting snapshot")
			if d.snapshots != nil {
				d.snapshots.RequestSnapshot(delta.Symbol)
			}
			return nil
		}
		return err
	}
	if d.deltas != nil {
		d.deltas.Publish(delta)
	}
	return nil
}
