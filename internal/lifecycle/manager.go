package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fenrir/internal/book"
	"fenrir/internal/bus"
	"fenrir/internal/fxpt"
	"fenrir/internal/match"
	"fenrir/internal/model"
	"fenrir/internal/risk"
	"fenrir/internal/wal"
)

// Config holds the manager's startup tunables, per spec.md §6.
type Config struct {
	BookConfig book.Config
	// IdempotencyWindow bounds how long a (account, client_order_id)
	// pair is remembered for duplicate rejection, per spec.md §4.8.
	IdempotencyWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdempotencyWindow <= 0 {
		c.IdempotencyWindow = 24 * time.Hour
	}
	return c
}

type idempotencyKey struct {
	account       string
	clientOrderID string
}

// Manager owns every order from creation to terminal state (spec.md
// §4.8). It submits new orders through the risk gate, then the matching
// engine, and folds the resulting fills back into order state and the
// audit log. Generalizes the teacher's Engine, which only ever held a
// map of per-asset order books (internal/engine/engine.go) with no
// lifecycle, risk, or audit wiring of its own.
type Manager struct {
	cfg     Config
	risk    risk.Service
	matcher *match.Matcher
	audit   *wal.Log
	fills   *bus.Topic[model.Fill]

	booksMu sync.Mutex
	books   map[fxpt.Symbol]*book.Book

	ordersMu sync.RWMutex
	orders   map[string]*model.Order

	idemMu sync.Mutex
	idem   map[idempotencyKey]time.Time
}

// New constructs a Manager. auditLog is a dedicated WAL instance
// separate from any other record stream (spec.md §4.8 "a dedicated
// audit log"). fills may be nil.
func New(cfg Config, riskSvc risk.Service, matcher *match.Matcher, auditLog *wal.Log, fills *bus.Topic[model.Fill]) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:     cfg,
		risk:    riskSvc,
		matcher: matcher,
		audit:   auditLog,
		fills:   fills,
		books:   make(map[fxpt.Symbol]*book.Book),
		orders:  make(map[string]*model.Order),
		idem:    make(map[idempotencyKey]time.Time),
	}
}

func (m *Manager) bookFor(symbol fxpt.Symbol) *book.Book {
	m.booksMu.Lock()
	defer m.booksMu.Unlock()
	b, ok := m.books[symbol]
	if !ok {
		b = book.New(symbol, m.cfg.BookConfig)
		m.books[symbol] = b
	}
	return b
}

// Book exposes the resolved book for a symbol, creating it if needed:
// for queries (depth, BBO, snapshots) by transport-layer callers, and
// for the market-data dispatcher (internal/ingress), which applies
// snapshots and deltas to it.
func (m *Manager) Book(symbol fxpt.Symbol) *book.Book {
	return m.bookFor(symbol)
}

// PlaceOrder runs the full New -> Pending|Rejected -> ... state machine
// of spec.md §4.8 for one incoming order: idempotency check, risk gate,
// matching engine, fill application, audit logging at every transition.
func (m *Manager) PlaceOrder(ctx context.Context, req PlaceOrderRequest, now fxpt.Ts) (*model.Order, error) {
	if req.ClientOrderID != "" {
		if m.seenRecently(req.Account, req.ClientOrderID, now) {
			return nil, ErrDuplicateClientOrderID
		}
	}

	order := &model.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TIF:           req.TIF,
		LimitPrice:    req.LimitPrice,
		Quantity:      req.Quantity,
		TotalQuantity: req.Quantity,
		Status:        model.StatusNew,
		Owner:         req.Account,
		Timestamp:     now,
	}
	m.recordOrder(order)
	m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditCreated, PreStatus: model.StatusNew, PostStatus: model.StatusNew, Timestamp: now, Version: order.Version})

	b := m.bookFor(req.Symbol)
	var priceLimit *fxpt.Px
	if req.Type == fxpt.LimitOrder {
		priceLimit = &req.LimitPrice
	}
	crossesOwnOrder := b.CrossesOwnOrder(req.Side, priceLimit, req.Account)

	decision := m.risk.CheckOrder(req.Account, req.Symbol, req.Side, req.Quantity, req.LimitPrice, now, crossesOwnOrder)
	if decision.Kind != risk.Approved {
		pre := order.Status
		order.Status = model.StatusRejected
		m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditRiskRejected, PreStatus: pre, PostStatus: order.Status, Reason: decision.Reason, Timestamp: now, Version: order.Version})
		return order, nil
	}
	m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditRiskApproved, PreStatus: model.StatusNew, PostStatus: model.StatusNew, Timestamp: now, Version: order.Version})

	order.ExchTimestamp = now
	result := m.matcher.Process(b, order, now)

	if result.Rejected {
		pre := order.Status
		order.Status = model.StatusRejected
		m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditRejected, PreStatus: pre, PostStatus: order.Status, Reason: "fill-or-kill: insufficient liquidity", Timestamp: now, Version: order.Version})
		return order, nil
	}

	m.applyFills(order, result, now)
	m.auditTerminalTransition(ctx, order, now)
	return order, nil
}

// applyFills folds the matcher's fills into position updates and fans
// them out on the fills topic, per spec.md §4.3's "each match emits two
// fills" and §4.5's requirement that every fill update risk exposure.
func (m *Manager) applyFills(order *model.Order, result match.Result, now fxpt.Ts) {
	for _, f := range result.Fills {
		m.risk.UpdatePosition(f.Symbol, f.Side, f.Price, f.Quantity, now)
		if m.fills != nil {
			m.fills.Publish(f)
		}
	}
}

// auditTerminalTransition appends the fill/rest outcome of a matcher
// Result to the audit log: PartiallyFilled, Filled, or (for a GTC/Day
// order with no crossing liquidity) the original Pending rest.
func (m *Manager) auditTerminalTransition(ctx context.Context, order *model.Order, now fxpt.Ts) {
	switch order.Status {
	case model.StatusFilled:
		m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditFilled, PreStatus: model.StatusPending, PostStatus: model.StatusFilled, Timestamp: now, Version: order.Version})
	case model.StatusPartiallyFilled:
		m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditPartiallyFilled, PreStatus: model.StatusPending, PostStatus: model.StatusPartiallyFilled, Timestamp: now, Version: order.Version})
	case model.StatusCancelled:
		m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditCancelled, PreStatus: model.StatusPending, PostStatus: model.StatusCancelled, Reason: "residual discarded at non-resting TIF", Timestamp: now, Version: order.Version})
	case model.StatusPending:
		// Rested with no fills; nothing new to audit beyond the
		// RiskApproved entry already appended.
	}
}

// CancelOrder transitions a non-terminal order to Cancelled, per spec.md
// §4.8's "* -> Cancelled if non-terminal".
func (m *Manager) CancelOrder(ctx context.Context, orderID string, now fxpt.Ts) error {
	order, ok := m.lookup(orderID)
	if !ok {
		return ErrOrderNotFound
	}

	m.ordersMu.Lock()
	if order.Status.IsTerminal() {
		m.ordersMu.Unlock()
		return ErrTerminalOrder
	}
	pre := order.Status
	order.Status = model.StatusCancelled
	m.ordersMu.Unlock()

	if pre == model.StatusPending || pre == model.StatusPartiallyFilled {
		m.bookFor(order.Symbol).RemoveOrder(orderID)
	}
	m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditCancelled, PreStatus: pre, PostStatus: model.StatusCancelled, Timestamp: now, Version: order.Version})
	return nil
}

// AmendOrder replaces the resting order's price and/or quantity,
// creating a new version in its audit chain, per spec.md §4.8
// ("Amendments create a new version; the version chain is preserved in
// the audit log"). Implemented as cancel-then-replace against the book,
// which is the same pattern the teacher's own book mutation methods
// follow for any structural change to a resting order.
func (m *Manager) AmendOrder(ctx context.Context, orderID string, newPrice *fxpt.Px, newQty *fxpt.Qty, now fxpt.Ts) (*model.Order, error) {
	order, ok := m.lookup(orderID)
	if !ok {
		return nil, ErrOrderNotFound
	}

	m.ordersMu.Lock()
	if order.Status.IsTerminal() {
		m.ordersMu.Unlock()
		return nil, ErrTerminalOrder
	}
	wasResting := order.Status == model.StatusPending || order.Status == model.StatusPartiallyFilled
	pre := order.Status
	if newPrice != nil {
		order.LimitPrice = *newPrice
	}
	if newQty != nil {
		order.Quantity = *newQty
		order.TotalQuantity = order.Executed + *newQty
	}
	order.Version++
	m.ordersMu.Unlock()

	b := m.bookFor(order.Symbol)
	if wasResting {
		b.RemoveOrder(orderID)
		b.InsertResting(order)
	}

	m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditAmended, PreStatus: pre, PostStatus: order.Status, Timestamp: now, Version: order.Version})
	return order, nil
}

// ExpireOrder transitions a non-terminal order to Expired, per spec.md
// §4.8's TIF-expiry transition. Callers (a Day-order sweep at session
// close, or a per-order deadline timer) drive this explicitly; the
// manager itself holds no wall-clock state.
func (m *Manager) ExpireOrder(ctx context.Context, orderID string, now fxpt.Ts) error {
	order, ok := m.lookup(orderID)
	if !ok {
		return ErrOrderNotFound
	}

	m.ordersMu.Lock()
	if order.Status.IsTerminal() {
		m.ordersMu.Unlock()
		return ErrTerminalOrder
	}
	pre := order.Status
	order.Status = model.StatusExpired
	m.ordersMu.Unlock()

	if pre == model.StatusPending || pre == model.StatusPartiallyFilled {
		m.bookFor(order.Symbol).RemoveOrder(orderID)
	}
	m.appendAudit(ctx, AuditRecord{OrderID: order.ID, ClientOrderID: order.ClientOrderID, Kind: AuditExpired, PreStatus: pre, PostStatus: model.StatusExpired, Timestamp: now, Version: order.Version})
	return nil
}

// Order returns a copy of the live order state, for transport-layer
// status queries.
func (m *Manager) Order(orderID string) (model.Order, bool) {
	order, ok := m.lookup(orderID)
	if !ok {
		return model.Order{}, false
	}
	m.ordersMu.RLock()
	defer m.ordersMu.RUnlock()
	return *order, true
}

func (m *Manager) lookup(orderID string) (*model.Order, bool) {
	m.ordersMu.RLock()
	defer m.ordersMu.RUnlock()
	o, ok := m.orders[orderID]
	return o, ok
}

func (m *Manager) recordOrder(order *model.Order) {
	m.ordersMu.Lock()
	m.orders[order.ID] = order
	m.ordersMu.Unlock()
}

// seenRecently reports whether (account, clientOrderID) was already
// accepted within the idempotency lookback window, and records this
// attempt if not, per spec.md §4.8.
func (m *Manager) seenRecently(account, clientOrderID string, now fxpt.Ts) bool {
	key := idempotencyKey{account: account, clientOrderID: clientOrderID}
	nowWall := time.Unix(0, int64(now))

	m.idemMu.Lock()
	defer m.idemMu.Unlock()

	if last, ok := m.idem[key]; ok && nowWall.Sub(last) < m.cfg.IdempotencyWindow {
		return true
	}
	m.idem[key] = nowWall

	// Opportunistically prune expired entries so the map doesn't grow
	// unbounded across a long-running process.
	for k, t := range m.idem {
		if nowWall.Sub(t) >= m.cfg.IdempotencyWindow {
			delete(m.idem, k)
		}
	}
	return false
}

// AuditTrail reconstructs an order's full version chain by replaying
// the dedicated audit log from the beginning and decoding every record
// for orderID, per spec.md §4.8 ("the version chain is preserved in the
// audit log"). This is an after-the-fact inspection path (compliance
// review, incident replay), not part of the hot order-placement path.
func (m *Manager) AuditTrail(orderID string) ([]AuditRecord, error) {
	if m.audit == nil {
		return nil, nil
	}
	var records []AuditRecord
	err := m.audit.Replay(0, nil, func(rec wal.Record) error {
		if rec.Type != wal.RecordAudit {
			return nil
		}
		r, err := decodeAudit(rec.Payload)
		if err != nil {
			return err
		}
		if r.OrderID == orderID {
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// appendAudit durably appends r before returning, per spec.md §5
// ("producers enqueue and await an acknowledgment only when durability
// is required") — a compliance audit trail is exactly that case, and
// AuditTrail's replay must see every transition a caller has already
// observed return.
func (m *Manager) appendAudit(ctx context.Context, r AuditRecord) {
	if m.audit == nil {
		return
	}
	if _, err := m.audit.AppendSync(ctx, wal.RecordAudit, encodeAudit(r)); err != nil {
		log.Error().Err(err).Str("order_id", r.OrderID).Msg("lifecycle: audit append failed")
	}
}
