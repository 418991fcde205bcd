// Package lifecycle implements the order lifecycle manager (spec.md
// §4.8, C9): it owns every order from creation to terminal state,
// wiring the risk gate (C6) in front of the matching engine (C4) and
// turning fills back into state transitions and audit entries. It
// fleshes out exactly what the teacher's Engine.PlaceOrder and
// Engine.Trade stub out (internal/engine/engine.go, both marked with
// // FIXME for execution reporting and trade logging).
package lifecycle

import (
	"errors"

	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// Errors returned by Manager, mirroring spec.md §7's error kinds
// (StateConflict, NotFound) without forcing every caller through
// coreerr.CoreError metadata for the common lifecycle cases.
var (
	ErrDuplicateClientOrderID = errors.New("lifecycle: duplicate client_order_id within lookback window")
	ErrOrderNotFound          = errors.New("lifecycle: order not found")
	ErrTerminalOrder          = errors.New("lifecycle: order already in a terminal state")
)

// PlaceOrderRequest is the inbound shape for Manager.PlaceOrder, mirroring
// spec.md §6's order-egress place_order contract.
type PlaceOrderRequest struct {
	Account       string
	ClientOrderID string
	Symbol        fxpt.Symbol
	Side          fxpt.Side
	Type          fxpt.OrderType
	TIF           fxpt.TimeInForce
	LimitPrice    fxpt.Px
	Quantity      fxpt.Qty
}

// AuditKind tags one audit-log entry, per spec.md §4.8 ("event kind,
// timestamps, pre/post state, reason").
type AuditKind uint8

const (
	AuditCreated AuditKind = iota
	AuditRiskApproved
	AuditRiskRejected
	AuditPartiallyFilled
	AuditFilled
	AuditCancelled
	AuditRejected
	AuditExpired
	AuditAmended
)

func (k AuditKind) String() string {
	switch k {
	case AuditRiskApproved:
		return "risk_approved"
	case AuditRiskRejected:
		return "risk_rejected"
	case AuditPartiallyFilled:
		return "partially_filled"
	case AuditFilled:
		return "filled"
	case AuditCancelled:
		return "cancelled"
	case AuditRejected:
		return "rejected"
	case AuditExpired:
		return "expired"
	case AuditAmended:
		return "amended"
	default:
		return "created"
	}
}

// AuditRecord is one entry in the dedicated, WAL-backed audit log.
// Amendments form a version chain: every record for an order carries
// that order's Version at the time of the transition, so the full chain
// can be reconstructed by filtering the log on OrderID and sorting by
// Version.
type AuditRecord struct {
	OrderID       string
	ClientOrderID string
	Kind          AuditKind
	PreStatus     model.OrderStatus
	PostStatus    model.OrderStatus
	Reason        string
	Timestamp     fxpt.Ts
	Version       int
}
