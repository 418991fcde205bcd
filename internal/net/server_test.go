package net

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/fxpt"
	"fenrir/internal/lifecycle"
	"fenrir/internal/model"
)

type fakeEngine struct {
	placed   []lifecycle.PlaceOrderRequest
	order    *model.Order
	placeErr error

	cancelled []string
	cancelErr error

	amended  []string
	amendErr error
}

func (f *fakeEngine) PlaceOrder(_ context.Context, req lifecycle.PlaceOrderRequest, _ fxpt.Ts) (*model.Order, error) {
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return f.order, nil
}

func (f *fakeEngine) CancelOrder(_ context.Context, orderID string, _ fxpt.Ts) error {
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelErr
}

func (f *fakeEngine) AmendOrder(_ context.Context, orderID string, _ *fxpt.Px, _ *fxpt.Qty, _ fxpt.Ts) (*model.Order, error) {
	f.amended = append(f.amended, orderID)
	if f.amendErr != nil {
		return nil, f.amendErr
	}
	return &model.Order{ID: orderID}, nil
}

// encodeNewOrder mirrors parseNewOrder's layout, used only by tests to
// build wire messages without round-tripping through a real client.
func encodeNewOrder(m NewOrderMessage) ([]byte, error) {
	body := make([]byte, 0, NewOrderMessageHeaderLen+len(m.ClientOrderID)+len(m.Username))
	put32 := func(v uint32) {
		body = append(body, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	put64 := func(v uint64) {
		for i := 7; i >= 0; i-- {
			body = append(body, byte(v>>(8*uint(i))))
		}
	}
	put32(uint32(m.Symbol))
	body = append(body, byte(m.Side), byte(m.OrderType), byte(m.TIF))
	put64(uint64(m.LimitPrice))
	put64(uint64(m.Quantity))
	body = append(body, byte(len(m.ClientOrderID)), byte(len(m.Username)))
	body = append(body, []byte(m.ClientOrderID)...)
	body = append(body, []byte(m.Username)...)

	out := make([]byte, 0, 2+len(body))
	out = append(out, byte(NewOrder>>8), byte(NewOrder))
	out = append(out, body...)
	return out, nil
}

func TestHandleMessagePlaceOrderTracksOwnerOnSuccess(t *testing.T) {
	engine := &fakeEngine{order: &model.Order{ID: "order-1", Status: model.StatusPending}}
	s := New("127.0.0.1", 0, engine, nil)
	s.clientSessions["client-a"] = ClientSession{}

	wire, err := encodeNewOrder(NewOrderMessage{
		Symbol: 1, Side: fxpt.Buy, OrderType: fxpt.LimitOrder, TIF: fxpt.GTC,
		LimitPrice: fxpt.PxFromFloat(10), Quantity: fxpt.QtyFromFloat(1),
		ClientOrderID: "coid-1", Username: "trader1",
	})
	require.NoError(t, err)

	msg, err := parseMessage(wire)
	require.NoError(t, err)

	err = s.handleMessage(ClientMessage{clientAddress: "client-a", message: msg})
	require.NoError(t, err)

	require.Len(t, engine.placed, 1)
	assert.Equal(t, "trader1", engine.placed[0].Account)
	assert.Equal(t, "client-a", s.orderOwners["order-1"])
}

func TestHandleMessagePlaceOrderReportsErrorToClient(t *testing.T) {
	engine := &fakeEngine{placeErr: errors.New("risk rejected")}
	s := New("127.0.0.1", 0, engine, nil)

	wire, err := encodeNewOrder(NewOrderMessage{
		Symbol: 1, Side: fxpt.Sell, OrderType: fxpt.MarketOrder, TIF: fxpt.IOC,
		LimitPrice: 0, Quantity: fxpt.QtyFromFloat(1), Username: "trader2",
	})
	require.NoError(t, err)
	msg, err := parseMessage(wire)
	require.NoError(t, err)

	err = s.handleMessage(ClientMessage{clientAddress: "ghost", message: msg})
	assert.ErrorIs(t, err, ErrClientDoesNotExist)
}

func TestHandleMessageCancelOrderDispatchesToEngine(t *testing.T) {
	engine := &fakeEngine{}
	s := New("127.0.0.1", 0, engine, nil)

	wire := []byte{0, byte(CancelOrder), 7}
	wire = append(wire, []byte("order-1")...)

	msg, err := parseMessage(wire)
	require.NoError(t, err)

	err = s.handleMessage(ClientMessage{clientAddress: "client-a", message: msg})
	require.NoError(t, err)
	assert.Equal(t, []string{"order-1"}, engine.cancelled)
}
