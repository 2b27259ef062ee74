package domain

import "time"

// Timeframe identifies a candle bucket width.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Timeframes lists all supported timeframes in ascending width order.
var Timeframes = []Timeframe{
	Timeframe1m, Timeframe5m, Timeframe15m,
	Timeframe1h, Timeframe4h, Timeframe1d,
}

// Duration returns the bucket width. Unknown timeframes map to 1m.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// ValidTimeframe reports whether tf is one of the supported values.
func ValidTimeframe(tf Timeframe) bool {
	for _, t := range Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// BucketStart floor-aligns a unix-ms timestamp to the start of the
// bucket containing it.
func (tf Timeframe) BucketStart(timestampMs int64) int64 {
	width := tf.Duration().Milliseconds()
	return timestampMs - timestampMs%width
}

// Candle is an OHLCV aggregate for one (token, timeframe, period).
// It is created lazily on the first trade in a period and merged on
// each subsequent trade.
type Candle struct {
	TokenID     string
	Timeframe   Timeframe
	PeriodStart int64 // unix ms, floor-aligned

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64 // lamports
	Trades int
}

// NewCandle creates a candle seeded from a single trade.
func NewCandle(tokenID string, tf Timeframe, periodStart int64, price, volume float64) *Candle {
	return &Candle{
		TokenID:     tokenID,
		Timeframe:   tf,
		PeriodStart: periodStart,
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      volume,
		Trades:      1,
	}
}

// Merge folds a trade into the candle: high=max, low=min, close=latest,
// volume accumulates.
func (c *Candle) Merge(price, volume float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += volume
	c.Trades++
}
