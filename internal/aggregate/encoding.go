package aggregate

import (
	"encoding/binary"

	"fenrir/internal/coreerr"
	"fenrir/internal/fxpt"
	"fenrir/internal/model"
)

// encodeTrade serializes t into a self-contained payload for
// wal.RecordTrade, per SPEC_FULL.md §5.4's event-tagging supplement.
// It follows the same fixed-width binary style already established by
// internal/wal's own frame encoding rather than introducing a second
// serialization scheme.
func encodeTrade(t model.Trade) []byte {
	idBytes := []byte(t.TradeID)
	buf := make([]byte, 4+8+8+1+8+2+len(idBytes))
	off := 0
	binary.BigEndian.PutUint32(buf[off:], uint32(t.Symbol))
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(t.Price))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(t.Quantity))
	off += 8
	buf[off] = byte(t.AggressorSide)
	off++
	binary.BigEndian.PutUint64(buf[off:], uint64(t.Timestamp))
	off += 8
	binary.BigEndian.PutUint16(buf[off:], uint16(len(idBytes)))
	off += 2
	copy(buf[off:], idBytes)
	return buf
}

// decodeTrade is the inverse of encodeTrade.
func decodeTrade(buf []byte) (model.Trade, error) {
	const minHeader = 4 + 8 + 8 + 1 + 8 + 2
	if len(buf) < minHeader {
		return model.Trade{}, coreerr.New(coreerr.KindWalCorrupt, "trade event payload too short", nil)
	}
	off := 0
	symbol := fxpt.Symbol(binary.BigEndian.Uint32(buf[off:]))
	off += 4
	price := fxpt.Px(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	qty := fxpt.Qty(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	side := fxpt.Side(buf[off])
	off++
	ts := fxpt.Ts(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	idLen := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if len(buf) < off+idLen {
		return model.Trade{}, coreerr.New(coreerr.KindWalCorrupt, "trade event id truncated", nil)
	}
	id := string(buf[off : off+idLen])

	return model.Trade{
		Symbol:        symbol,
		Price:         price,
		Quantity:      qty,
		AggressorSide: side,
		TradeID:       id,
		Timestamp:     ts,
	}, nil
}
