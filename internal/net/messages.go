package net

import (
	"encoding/binary"
	"errors"

	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified field length")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	AmendOrder
)

type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants. Fixed-width fields only; variable-length
// fields (client_order_id, username, order_id, reason) are
// length-prefixed and appended after the fixed header, the same
// convention internal/wal and internal/lifecycle's payload codecs use.
const (
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 4 + 1 + 1 + 1 + 8 + 8 + 1 + 1
	CancelOrderMessageHeaderLen = 1
	AmendOrderMessageHeaderLen  = 1 + 1 + 8 + 1 + 8
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case AmendOrder:
		return parseAmendOrder(msg)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// NewOrderMessage is the wire form of lifecycle.PlaceOrderRequest,
// generalizing the teacher's single-ticker/float64-price NewOrderMessage
// to a fxpt.Symbol token and fixed-point price/quantity.
type NewOrderMessage struct {
	BaseMessage
	Symbol        fxpt.Symbol      // 4 bytes
	Side          fxpt.Side        // 1 byte
	OrderType     fxpt.OrderType   // 1 byte
	TIF           fxpt.TimeInForce // 1 byte
	LimitPrice    fxpt.Px          // 8 bytes
	Quantity      fxpt.Qty         // 8 bytes
	ClientOrderID string           // n bytes, length-prefixed
	Username      string           // n bytes, length-prefixed
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	off := 0

	m.Symbol = fxpt.Symbol(binary.BigEndian.Uint32(msg[off:]))
	off += 4
	m.Side = fxpt.Side(msg[off])
	off++
	m.OrderType = fxpt.OrderType(msg[off])
	off++
	m.TIF = fxpt.TimeInForce(msg[off])
	off++
	m.LimitPrice = fxpt.Px(binary.BigEndian.Uint64(msg[off:]))
	off += 8
	m.Quantity = fxpt.Qty(binary.BigEndian.Uint64(msg[off:]))
	off += 8

	coidLen := int(msg[off])
	off++
	usernameLen := int(msg[off])
	off++

	if len(msg) < off+coidLen+usernameLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.ClientOrderID = string(msg[off : off+coidLen])
	off += coidLen
	m.Username = string(msg[off : off+usernameLen])

	return m, nil
}

// CancelOrderMessage cancels a previously placed order by its
// lifecycle-assigned order ID — a uuid string minted by
// lifecycle.Manager.PlaceOrder, not the teacher's raw 16-byte UUID slot.
type CancelOrderMessage struct {
	BaseMessage
	OrderID string
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	idLen := int(msg[0])
	if len(msg) < 1+idLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	return CancelOrderMessage{
		BaseMessage: BaseMessage{TypeOf: CancelOrder},
		OrderID:     string(msg[1 : 1+idLen]),
	}, nil
}

// AmendOrderMessage carries an optional new price and/or quantity,
// selected by the HasPrice/HasQty flags, per spec.md §6's amend_order(...).
type AmendOrderMessage struct {
	BaseMessage
	OrderID  string
	HasPrice bool
	NewPrice fxpt.Px
	HasQty   bool
	NewQty   fxpt.Qty
}

func parseAmendOrder(msg []byte) (AmendOrderMessage, error) {
	if len(msg) < AmendOrderMessageHeaderLen {
		return AmendOrderMessage{}, ErrMessageTooShort
	}
	off := 0
	idLen := int(msg[off])
	off++
	if len(msg) < off+idLen {
		return AmendOrderMessage{}, ErrMessageTooShort
	}
	orderID := string(msg[off : off+idLen])
	off += idLen

	if len(msg) < off+1+8+1+8 {
		return AmendOrderMessage{}, ErrMessageTooShort
	}
	hasPrice := msg[off] != 0
	off++
	newPrice := fxpt.Px(binary.BigEndian.Uint64(msg[off:]))
	off += 8
	hasQty := msg[off] != 0
	off++
	newQty := fxpt.Qty(binary.BigEndian.Uint64(msg[off:]))

	return AmendOrderMessage{
		BaseMessage: BaseMessage{TypeOf: AmendOrder},
		OrderID:     orderID,
		HasPrice:    hasPrice,
		NewPrice:    newPrice,
		HasQty:      hasQty,
		NewQty:      newQty,
	}, nil
}

// Report is the server-to-client wire shape for execution and error
// reports, generalizing the teacher's fixed-width Report from a single
// float64-priced ticker to fxpt's scaled types and a per-order ID
// rather than a fixed 16-byte UUID slot.
type Report struct {
	MessageType ReportMessageType
	Symbol      fxpt.Symbol
	Side        fxpt.Side
	Liquidity   model.LiquidityFlag
	Timestamp   fxpt.Ts
	Quantity    fxpt.Qty
	Price       fxpt.Px
	OrderID     string
	Err         string
}

const reportFixedHeaderLen = 1 + 4 + 1 + 1 + 8 + 8 + 8 + 1 + 2

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() ([]byte, error) {
	totalSize := reportFixedHeaderLen + len(r.OrderID) + len(r.Err)
	buf := make([]byte, totalSize)

	off := 0
	buf[off] = byte(r.MessageType)
	off++
	binary.BigEndian.PutUint32(buf[off:], uint32(r.Symbol))
	off += 4
	buf[off] = byte(r.Side)
	off++
	buf[off] = byte(r.Liquidity)
	off++
	binary.BigEndian.PutUint64(buf[off:], uint64(r.Timestamp))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(r.Quantity))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(r.Price))
	off += 8
	buf[off] = byte(len(r.OrderID))
	off++
	binary.BigEndian.PutUint16(buf[off:], uint16(len(r.Err)))
	off += 2

	off += copy(buf[off:], r.OrderID)
	copy(buf[off:], r.Err)

	return buf, nil
}

func parseReport(buf []byte) (Report, error) {
	if len(buf) < reportFixedHeaderLen {
		return Report{}, ErrMessageTooShort
	}
	off := 0
	var r Report
	r.MessageType = ReportMessageType(buf[off])
	off++
	r.Symbol = fxpt.Symbol(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	r.Side = fxpt.Side(buf[off])
	off++
	r.Liquidity = model.LiquidityFlag(buf[off])
	off++
	r.Timestamp = fxpt.Ts(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	r.Quantity = fxpt.Qty(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	r.Price = fxpt.Px(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	orderIDLen := int(buf[off])
	off++
	errLen := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2

	if len(buf) < off+orderIDLen+errLen {
		return Report{}, ErrMessageTooShort
	}
	r.OrderID = string(buf[off : off+orderIDLen])
	off += orderIDLen
	r.Err = string(buf[off : off+errLen])

	return r, nil
}

// executionReport builds the wire report for one fill.
func executionReport(f model.Fill) Report {
	return Report{
		MessageType: ExecutionReport,
		Symbol:      f.Symbol,
		Side:        f.Side,
		Liquidity:   f.Liquidity,
		Timestamp:   f.Timestamp,
		Quantity:    f.Quantity,
		Price:       f.Price,
		OrderID:     f.OrderID,
	}
}

func errorReport(orderID string, now fxpt.Ts, err error) Report {
	return Report{
		MessageType: ErrorReport,
		Timestamp:   now,
		OrderID:     orderID,
		Err:         err.Error(),
	}
}
