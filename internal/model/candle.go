package model

import "fenrir/internal/fxpt"

// Candle is an OHLCV bar for one (symbol, timeframe) pair, per spec.md
// §3. It is mutable while OpenTime <= now < OpenTime + TimeframeSeconds
// and immutable once closed and emitted.
type Candle struct {
	Symbol           fxpt.Symbol
	TimeframeSeconds int64
	OpenTime         fxpt.Ts
	Open             fxpt.Px
	High             fxpt.Px
	Low              fxpt.Px
	Close            fxpt.Px
	Volume           fxpt.Qty
	BuyVolume        fxpt.Qty
	SellVolume       fxpt.Qty
	TradeCount       uint64
	Closed           bool
}

// NewCandle opens a fresh candle bucketed at openTime with the trade
// that triggered it.
func NewCandle(symbol fxpt.Symbol, timeframeSeconds int64, openTime fxpt.Ts, t Trade) Candle {
	c := Candle{
		Symbol:           symbol,
		TimeframeSeconds: timeframeSeconds,
		OpenTime:         openTime,
		Open:             t.Price,
		High:             t.Price,
		Low:              t.Price,
		Close:            t.Price,
	}
	c.applyTrade(t)
	return c
}

// Update folds a trade into the candle, per spec.md §4.4.
func (c *Candle) Update(t Trade) {
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.applyTrade(t)
}

func (c *Candle) applyTrade(t Trade) {
	c.Volume = c.Volume.Add(t.Quantity)
	if t.AggressorSide == fxpt.Buy {
		c.BuyVolume = c.BuyVolume.Add(t.Quantity)
	} else {
		c.SellVolume = c.SellVolume.Add(t.Quantity)
	}
	c.TradeCount++
}

// Covers reports whether ts falls within this candle's open window.
func (c *Candle) Covers(ts fxpt.Ts) bool {
	windowEnd := fxpt.Ts(uint64(c.OpenTime) + uint64(c.TimeframeSeconds)*1_000_000_000)
	return ts >= c.OpenTime && ts < windowEnd
}

// Valid checks the OHLC consistency invariant of spec.md §8 property 6.
func (c *Candle) Valid() bool {
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	return c.Low <= lo && hi <= c.High && c.Volume == c.BuyVolume.Add(c.SellVolume)
}

// BucketOpenTime returns the start of the timeframe window containing ts.
func BucketOpenTime(ts fxpt.Ts, timeframeSeconds int64) fxpt.Ts {
	windowNs := uint64(timeframeSeconds) * 1_000_000_000
	return fxpt.Ts((uint64(ts) / windowNs) * windowNs)
}
