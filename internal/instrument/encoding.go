package instrument

import (
	"encoding/binary"

	"fenrir/internal/coreerr"
	"fenrir/internal/fxpt"
)

// encode serializes i for wal.RecordInstrument using the same
// fixed-width binary framing internal/wal and internal/aggregate use for
// their own payloads, rather than introducing a separate serialization
// scheme for this one record type.
func encode(i Instrument) []byte {
	symBytes := []byte(i.TradingSymbol)
	undBytes := []byte(i.Underlying)

	size := 4 /*token*/ + 2 + len(symBytes) + 2 + len(undBytes) +
		1 /*kind*/ + 1 /*hasExpiry*/ + 8 /*expiry*/ +
		8 /*strike*/ + 1 /*hasOptionType*/ + 1 /*optionType*/ +
		8 /*lotSize*/ + 8 /*tickSize*/ + 1 /*active*/
	buf := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint32(buf[off:], uint32(i.Token))
	off += 4
	binary.BigEndian.PutUint16(buf[off:], uint16(len(symBytes)))
	off += 2
	off += copy(buf[off:], symBytes)
	binary.BigEndian.PutUint16(buf[off:], uint16(len(undBytes)))
	off += 2
	off += copy(buf[off:], undBytes)
	buf[off] = byte(i.Kind)
	off++
	buf[off] = boolByte(i.HasExpiry)
	off++
	binary.BigEndian.PutUint64(buf[off:], uint64(i.Expiry))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(i.Strike))
	off += 8
	buf[off] = boolByte(i.HasOptionType)
	off++
	buf[off] = byte(i.OptionType)
	off++
	binary.BigEndian.PutUint64(buf[off:], uint64(i.LotSize))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], uint64(i.TickSize))
	off += 8
	buf[off] = boolByte(i.Active)

	return buf
}

// decode is the inverse of encode.
func decode(buf []byte) (Instrument, error) {
	const minFixed = 4 + 2
	if len(buf) < minFixed {
		return Instrument{}, coreerr.New(coreerr.KindWalCorrupt, "instrument payload too short", nil)
	}
	off := 0
	token := fxpt.Symbol(binary.BigEndian.Uint32(buf[off:]))
	off += 4

	symLen, off2, err := readPrefixedString(buf, off)
	if err != nil {
		return Instrument{}, err
	}
	tradingSymbol := symLen
	off = off2

	underlying, off3, err := readPrefixedString(buf, off)
	if err != nil {
		return Instrument{}, err
	}
	off = off3

	const tail = 1 + 1 + 8 + 8 + 1 + 1 + 8 + 8 + 1
	if len(buf) < off+tail {
		return Instrument{}, coreerr.New(coreerr.KindWalCorrupt, "instrument payload truncated", nil)
	}

	kind := Kind(buf[off])
	off++
	hasExpiry := buf[off] != 0
	off++
	expiry := fxpt.Ts(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	strike := fxpt.Px(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	hasOptionType := buf[off] != 0
	off++
	optionType := OptionType(buf[off])
	off++
	lotSize := fxpt.Qty(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	tickSize := fxpt.Px(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	active := buf[off] != 0

	return Instrument{
		Token:         token,
		TradingSymbol: tradingSymbol,
		Underlying:    underlying,
		Kind:          kind,
		Expiry:        expiry,
		HasExpiry:     hasExpiry,
		Strike:        strike,
		OptionType:    optionType,
		HasOptionType: hasOptionType,
		LotSize:       lotSize,
		TickSize:      tickSize,
		Active:        active,
	}, nil
}

func readPrefixedString(buf []byte, off int) (string, int, error) {
	if len(buf) < off+2 {
		return "", 0, coreerr.New(coreerr.KindWalCorrupt, "instrument payload string header truncated", nil)
	}
	n := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if len(buf) < off+n {
		return "", 0, coreerr.New(coreerr.KindWalCorrupt, "instrument payload string body truncated", nil)
	}
	return string(buf[off : off+n]), off + n, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
