package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/bus"
	"fenrir/internal/fxpt"
)

func qty(v int64) fxpt.Qty { return fxpt.Qty(v * fxpt.Scale) }
func px(v int64) fxpt.Px   { return fxpt.Px(v * fxpt.Scale) }

func testLimits() Limits {
	return Limits{
		MaxOrderQty:       qty(1000),
		MaxOrderNotional:  px(1_000_000),
		MaxSymbolExposure: qty(100),
		MaxTotalExposure:  qty(100),
		OrdersPerMinute:   5,
		MaxDailyLoss:      px(250_000),
		DrawdownThreshold: px(1), // effectively disabled for these tests
	}
}

// TestRiskCascadeOrdering is scenario S5: with max_position_size=100,
// max_orders_per_minute=5, and a starting net position of 95, every
// buy of qty=10 would project the position to 105 and must be rejected
// on exposure — before the rate-limit bucket is ever touched.
func TestRiskCascadeOrdering(t *testing.T) {
	g := NewGate(testLimits(), nil)
	g.UpdatePosition(1, fxpt.Buy, px(100), qty(95), 1)

	bucketTokensBefore := g.bucketFor("acct1").tokens

	approvedCount := 0
	for i := 0; i < 10; i++ {
		d := g.CheckOrder("acct1", 1, fxpt.Buy, qty(10), px(100), fxpt.Ts(i), false)
		if d.Kind == Approved {
			approvedCount++
		} else {
			assert.Equal(t, Rejected, d.Kind)
			assert.Contains(t, d.Reason, "exposure")
		}
	}

	assert.Equal(t, 0, approvedCount, "every order projects past the exposure limit and must be rejected")
	assert.Equal(t, bucketTokensBefore, g.bucketFor("acct1").tokens, "exposure rejection must precede rate-limit token consumption")
}

// TestKillSwitchRejectsRegardlessOfState is scenario S6.
func TestKillSwitchRejectsRegardlessOfState(t *testing.T) {
	g := NewGate(testLimits(), nil)

	activated := g.ActivateKillSwitch("operator halt", 1)
	require.True(t, activated)

	d := g.CheckOrder("acct1", 1, fxpt.Buy, qty(1), px(100), 2, false)
	assert.Equal(t, Rejected, d.Kind)
	assert.Equal(t, "kill switch active", d.Reason)

	deactivated := g.DeactivateKillSwitch("operator resume", 3)
	require.True(t, deactivated)

	d2 := g.CheckOrder("acct1", 1, fxpt.Buy, qty(1), px(100), 4, false)
	assert.Equal(t, Approved, d2.Kind)
}

// TestRateLimitFidelity is property 10: across a window, approved
// decisions per account never exceed max_orders_per_minute.
func TestRateLimitFidelity(t *testing.T) {
	limits := testLimits()
	limits.MaxSymbolExposure = qty(1_000_000)
	limits.MaxTotalExposure = qty(1_000_000)
	g := NewGate(limits, nil)

	approved := 0
	for i := 0; i < 20; i++ {
		d := g.CheckOrder("acct1", 1, fxpt.Buy, qty(1), px(100), fxpt.Ts(i), false)
		if d.Kind == Approved {
			approved++
		}
	}
	assert.LessOrEqual(t, approved, limits.OrdersPerMinute)
}

// TestCheckOrderNeverMutatesStateOnRejection is property 9: identical
// inputs against identical state always return the same decision, and a
// Rejected decision must not mutate position/exposure state.
func TestCheckOrderNeverMutatesStateOnRejection(t *testing.T) {
	limits := testLimits()
	limits.OrdersPerMinute = 1000 // isolate the exposure rule
	g := NewGate(limits, nil)
	g.UpdatePosition(1, fxpt.Buy, px(100), qty(95), 1)

	before, _ := g.GetPosition(1)
	d1 := g.CheckOrder("acct1", 1, fxpt.Buy, qty(10), px(100), 2, false)
	d2 := g.CheckOrder("acct1", 1, fxpt.Buy, qty(10), px(100), 3, false)
	after, _ := g.GetPosition(1)

	assert.Equal(t, d1.Kind, d2.Kind)
	assert.Equal(t, d1.Reason, d2.Reason)
	assert.Equal(t, before, after, "a rejected check_order must not mutate position state")
}

func TestEventsPublishedForEveryDecision(t *testing.T) {
	topic := bus.NewTopic[Event](8)
	sub := topic.Subscribe()
	defer sub.Unsubscribe()

	g := NewGate(testLimits(), topic)
	g.CheckOrder("acct1", 1, fxpt.Buy, qty(1), px(100), 1, false)

	env := <-sub.Events()
	require.Nil(t, env.Lag)
	assert.Equal(t, EventOrderChecked, env.Value.Kind)
}

// TestSelfCrossIsRejectedBeforeSizeAndExposureRules is spec.md §4.3's
// self-cross prevention, which lives in the risk gate rather than the
// matcher: an incoming order crossing a resting order from the same
// account is rejected even when size, exposure and rate limits would
// all otherwise pass.
func TestSelfCrossIsRejectedBeforeSizeAndExposureRules(t *testing.T) {
	g := NewGate(testLimits(), nil)

	d := g.CheckOrder("acct1", 1, fxpt.Buy, qty(1), px(100), 1, true)
	assert.Equal(t, Rejected, d.Kind)
	assert.Contains(t, d.Reason, "self-cross")

	d2 := g.CheckOrder("acct1", 1, fxpt.Buy, qty(1), px(100), 2, false)
	assert.Equal(t, Approved, d2.Kind, "an otherwise-identical order without a same-account counterparty must still be approved")
}
