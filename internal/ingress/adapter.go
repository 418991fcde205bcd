package ingress

import "context"

// Adapter is the contract an exchange-specific connector implements to
// feed normalized events into the core, per spec.md §6 "An adapter
// provides a stream of normalized MarketEvents". Run should block,
// pushing events onto out until ctx is cancelled or the venue
// connection is lost past its retry budget (spec.md §6 exit code 2),
// and return the terminal error.
//
// A real implementation lives outside this module (spec.md §1: "the
// exchange adapter layer... the strategy/signal layer" are external
// collaborators); this interface is the seam the core depends on, the
// same way the teacher's net.Server depends on the Engine interface
// rather than a concrete order book.
type Adapter interface {
	Run(ctx context.Context, out chan<- MarketEvent) error
}

// AdapterFunc lets a plain function satisfy Adapter, for tests and
// simple synthetic feeds.
type AdapterFunc func(ctx context.Context, out chan<- MarketEvent) error

func (f AdapterFunc) Run(ctx context.Context, out chan<- MarketEvent) error { return f(ctx, out) }
