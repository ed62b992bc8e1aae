// Package feed supplies bars to the indicator engine from files, stored
// history or any other Source.
package feed

import (
	"context"
	"sort"

	"streamta/internal/model"
)

// Source produces bars into out until it is exhausted or ctx is done. Run
// does not close out.
type Source interface {
	Run(ctx context.Context, out chan<- model.Bar) error
}

// SortBars sorts bars by timestamp, keeping the relative order of bars with
// equal timestamps.
func SortBars(bars []model.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].TS.Before(bars[j].TS)
	})
}

// Defaults fill series fields a file does not carry.
type Defaults struct {
	Exchange string
	Token    string
	TF       int
}

func (d Defaults) apply(b *model.Bar) {
	if b.Exchange == "" {
		b.Exchange = d.Exchange
	}
	if b.Token == "" {
		b.Token = d.Token
	}
	if b.TF == 0 {
		b.TF = d.TF
	}
}
