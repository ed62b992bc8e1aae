package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// IndicatorResult holds the output of one named indicator for one bar of a
// series. Values and Signals have the fixed shape of the indicator kind.
type IndicatorResult struct {
	Name     string    `json:"name"` // configured indicator name, e.g. "coppock"
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	TF       int       `json:"tf"`
	TS       time.Time `json:"ts"` // bar timestamp that produced this result
	Values   []float64 `json:"values"`
	Signals  []int8    `json:"signals"` // -1 sell, 0 none, +1 buy
}

func (r *IndicatorResult) seriesPart() string {
	return r.Name + ":" + r.SeriesKey()
}

// SeriesKey returns the key of the bar series the result belongs to,
// "{TF}s:{exchange}:{token}".
func (r *IndicatorResult) SeriesKey() string {
	return strconv.Itoa(r.TF) + "s:" + r.Exchange + ":" + r.Token
}

// StreamKey returns the Redis stream key: "ind:{name}:{TF}s:{exchange}:{token}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.seriesPart()
}

// LatestKey returns the Redis key holding the most recent result.
func (r *IndicatorResult) LatestKey() string {
	return "ind:latest:" + r.seriesPart()
}

// PubSubChannel returns the Redis pubsub channel: "pub:ind:{name}:{TF}s:{exchange}:{token}".
func (r *IndicatorResult) PubSubChannel() string {
	return "pub:ind:" + r.seriesPart()
}

// HasSignal reports whether any signal is non-neutral.
func (r *IndicatorResult) HasSignal() bool {
	for _, s := range r.Signals {
		if s != 0 {
			return true
		}
	}
	return false
}

// JSON returns the JSON-encoded result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
