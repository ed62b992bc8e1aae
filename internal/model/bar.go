package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// OHLCV is the read-only shape of a price bar consumed by indicators.
// Indicators never mutate a bar; they only borrow it for one call.
type OHLCV interface {
	O() float64
	H() float64
	L() float64
	C() float64
	V() float64
}

// Bar is one time-indexed OHLCV observation for a single instrument.
type Bar struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	TF       int       `json:"tf"` // timeframe in seconds
	TS       time.Time `json:"ts"` // bucket start time (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

func (b Bar) O() float64 { return b.Open }
func (b Bar) H() float64 { return b.High }
func (b Bar) L() float64 { return b.Low }
func (b Bar) C() float64 { return b.Close }
func (b Bar) V() float64 { return b.Volume }

// Source projects the bar onto the given source kind.
func (b Bar) Source(s Source) float64 { return s.Of(b) }

// Key returns "exchange:token".
func (b *Bar) Key() string {
	return b.Exchange + ":" + b.Token
}

// SeriesKey identifies the bar stream an indicator instance is bound to:
// "{TF}s:{exchange}:{token}".
func (b *Bar) SeriesKey() string {
	return strconv.Itoa(b.TF) + "s:" + b.Exchange + ":" + b.Token
}

// StreamKey returns the Redis stream key bars of this series are published on:
// "bar:{TF}s:{exchange}:{token}".
func (b *Bar) StreamKey() string {
	return "bar:" + b.SeriesKey()
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}
