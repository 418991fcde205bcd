package risk

import (
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// Service is the risk-manager surface an external transport (gRPC, REST)
// would wrap, per SPEC_FULL.md §5.5's supplement from
// original_source/services/risk-manager/src/grpc_impl.rs
// (CheckOrder/UpdatePosition/GetPositions/GetMetrics/ActivateKillSwitch/
// StreamAlerts). The transport itself is out of scope (spec.md §1); this
// interface is what *Gate already implements, kept separate so callers
// depend on behavior, not the concrete type.
type Service interface {
	CheckOrder(account string, symbol fxpt.Symbol, side fxpt.Side, qty fxpt.Qty, price fxpt.Px, now fxpt.Ts, crossesOwnOrder bool) Decision
	UpdatePosition(symbol fxpt.Symbol, side fxpt.Side, price fxpt.Px, qty fxpt.Qty, now fxpt.Ts)
	GetPosition(symbol fxpt.Symbol) (model.Position, bool)
	GetAllPositions() []model.Position
	GetMetrics() Metrics
	ActivateKillSwitch(reason string, now fxpt.Ts) bool
	DeactivateKillSwitch(reason string, now fxpt.Ts) bool
	IsKillSwitchActive() bool
}

var _ Service = (*Gate)(nil)
