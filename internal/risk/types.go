// Package risk implements the pre-trade risk gate (spec.md §4.5, C6): an
// ordered rule cascade over kill switch, circuit breaker, size/notional
// limits, exposure projection, rate limiting, daily loss and drawdown,
// plus the position-tracking and alerting surface a risk service needs.
package risk

import (
	"fenrir/internal/fxpt"
)

// DecisionKind is the outcome of a pre-trade check, per spec.md §4.5.
// It is deliberately a plain value, never an error (spec.md §7: "Typed
// decision values... returned on the normal path, never error").
type DecisionKind uint8

const (
	Approved DecisionKind = iota
	Rejected
	RequiresApproval
)

func (k DecisionKind) String() string {
	switch k {
	case Rejected:
		return "Rejected"
	case RequiresApproval:
		return "RequiresApproval"
	default:
		return "Approved"
	}
}

// Decision is the result of CheckOrder.
type Decision struct {
	Kind   DecisionKind
	Reason string
}

func approved() Decision { return Decision{Kind: Approved} }

func rejected(reason string) Decision { return Decision{Kind: Rejected, Reason: reason} }

func requiresApproval(reason string) Decision {
	return Decision{Kind: RequiresApproval, Reason: reason}
}

// AlertLevel classifies a risk event for the alert stream, per the
// original_source risk-manager's grpc_impl.rs AlertLevel enum
// (Info/Warning/Critical/Emergency), supplemented here since spec.md
// itself never enumerates alert severities.
type AlertLevel uint8

const (
	AlertInfo AlertLevel = iota
	AlertWarning
	AlertCritical
	AlertEmergency
)

func (l AlertLevel) String() string {
	switch l {
	case AlertWarning:
		return "warning"
	case AlertCritical:
		return "critical"
	case AlertEmergency:
		return "emergency"
	default:
		return "info"
	}
}

// EventKind tags what produced a RiskEvent, mirroring the original
// source's RiskEventType (OrderChecked/OrderRejected/PositionUpdated/
// LimitBreached/CircuitBreakerTriggered/KillSwitchActivated).
type EventKind uint8

const (
	EventOrderChecked EventKind = iota
	EventOrderRejected
	EventPositionUpdated
	EventLimitBreached
	EventCircuitBreakerTriggered
	EventKillSwitchActivated
	EventKillSwitchDeactivated
)

// Event is published to the risk event bus topic on every decision and
// state change, per spec.md §4.5 "Every decision emits a risk event to
// the event bus."
type Event struct {
	Kind      EventKind
	Level     AlertLevel
	Symbol    fxpt.Symbol
	HasSymbol bool
	Message   string
	Timestamp fxpt.Ts
}

// Metrics is a point-in-time snapshot of the gate's state, for
// GetMetrics / monitoring, mirroring original_source's RiskMetrics.
type Metrics struct {
	TotalExposure        fxpt.Qty
	CurrentDrawdown       fxpt.Px
	DailyPnL              fxpt.Px
	OpenPositions         int
	OrdersToday           uint64
	CircuitBreakerActive  bool
	KillSwitchActive      bool
}

// Limits holds the configured thresholds each cascade rule checks
// against, per spec.md §6's risk-limit configuration options.
type Limits struct {
	MaxOrderQty          fxpt.Qty
	MaxOrderNotional      fxpt.Px
	MaxSymbolExposure     fxpt.Qty
	MaxTotalExposure      fxpt.Qty
	OrdersPerMinute       int
	MaxDailyLoss          fxpt.Px
	DrawdownThreshold     fxpt.Px // expressed as a Px-scaled fraction of equity
}

// DefaultLimits returns permissive-but-sane defaults; real deployments
// load Limits through internal/config.
func DefaultLimits() Limits {
	return Limits{
		MaxOrderQty:       fxpt.QtyFromFloat(100_000),
		MaxOrderNotional:  fxpt.PxFromFloat(10_000_000),
		MaxSymbolExposure: fxpt.QtyFromFloat(500_000),
		MaxTotalExposure:  fxpt.QtyFromFloat(2_000_000),
		OrdersPerMinute:   600,
		MaxDailyLoss:      fxpt.PxFromFloat(250_000),
		DrawdownThreshold: fxpt.PxFromFloat(0.15),
	}
}
