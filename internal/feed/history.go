package feed

import (
	"context"
	"fmt"

	"streamta/internal/model"
)

// HistorySource replays stored bars of the given TFs after FromTS (unix
// seconds, 0 for all).
type HistorySource struct {
	Reader model.BarReader
	TFs    []int
	FromTS int64
	Speed  float64
}

var _ Source = (*HistorySource)(nil)

func (s *HistorySource) Run(ctx context.Context, out chan<- model.Bar) error {
	var all []model.Bar
	for _, tf := range s.TFs {
		bars, err := s.Reader.ReadAllBars(ctx, tf, s.FromTS)
		if err != nil {
			return fmt.Errorf("history tf=%d: %w", tf, err)
		}
		all = append(all, bars...)
	}
	return NewReplayer("history", all, s.Speed).Run(ctx, out)
}
