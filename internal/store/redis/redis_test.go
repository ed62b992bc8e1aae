package redis

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"streamta/internal/model"
)

func TestStreamMaxLen(t *testing.T) {
	tests := []struct {
		tf   int
		want int64
	}{
		{0, 200},
		{1, 10900},
		{60, 280},
		{300, 200}, // 136 raised to the floor
		{3600, 200},
	}
	for _, tt := range tests {
		if got := streamMaxLen(tt.tf); got != tt.want {
			t.Errorf("streamMaxLen(%d) = %d, want %d", tt.tf, got, tt.want)
		}
	}
}

func TestStreamKeys(t *testing.T) {
	got := StreamKeys([]int{60, 300}, []string{"NSE:2885", "bad", "NSE:1594"})
	want := []string{
		"bar:60s:NSE:2885", "bar:60s:NSE:1594",
		"bar:300s:NSE:2885", "bar:300s:NSE:1594",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("StreamKeys = %v, want %v", got, want)
	}
}

func TestDecodeBar(t *testing.T) {
	in := model.Bar{
		Token: "2885", Exchange: "NSE", TF: 60,
		TS:   time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC),
		Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
	}
	got, err := decodeBar(goredis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": string(in.JSON())}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("decodeBar = %+v, want %+v", got, in)
	}

	if _, err := decodeBar(goredis.XMessage{Values: map[string]interface{}{}}); err == nil {
		t.Error("missing data field should fail")
	}
	if _, err := decodeBar(goredis.XMessage{Values: map[string]interface{}{"data": "{"}}); err == nil {
		t.Error("bad JSON should fail")
	}
}

func TestIsBusyGroup(t *testing.T) {
	if !isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("expected BUSYGROUP to be recognized")
	}
	if isBusyGroup(errors.New("ERR no such key")) {
		t.Error("unexpected match")
	}
}

func TestMissingIDs(t *testing.T) {
	ids := []string{"1-0", "2-0", "3-0"}
	claimed := []goredis.XMessage{{ID: "2-0"}}
	if got := missingIDs(ids, claimed); !reflect.DeepEqual(got, []string{"1-0", "3-0"}) {
		t.Errorf("missingIDs = %v", got)
	}
	all := []goredis.XMessage{{ID: "1-0"}, {ID: "2-0"}, {ID: "3-0"}}
	if got := missingIDs(ids, all); len(got) != 0 {
		t.Errorf("all claimed, missing = %v", got)
	}
	if got := missingIDs(ids, nil); !reflect.DeepEqual(got, ids) {
		t.Errorf("nothing claimed, missing = %v", got)
	}
}

type recordingWriter struct {
	fail    bool
	batches [][]model.IndicatorResult
	closed  bool
}

func (w *recordingWriter) WriteResultBatch(ctx context.Context, rs []model.IndicatorResult) error {
	if w.fail {
		return errors.New("connection refused")
	}
	w.batches = append(w.batches, append([]model.IndicatorResult(nil), rs...))
	return nil
}

func (w *recordingWriter) Close() error { w.closed = true; return nil }

func result(i int) model.IndicatorResult {
	return model.IndicatorResult{Name: "coppock", Token: "2885", Exchange: "NSE", TF: 60, Values: []float64{float64(i), 0}}
}

func TestBufferedWriter_BuffersWhileFailingThenFlushes(t *testing.T) {
	inner := &recordingWriter{fail: true}
	cb, clk := newTestBreaker(2, time.Second)
	bw := NewBufferedWriter(inner, cb, 100)

	buffered := 0
	bw.OnBuffer = func(n int) { buffered += n }
	flushed := 0
	bw.OnFlush = func(n int) { flushed += n }

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := bw.WriteResultBatch(ctx, []model.IndicatorResult{result(i)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if bw.PendingCount() != 4 || buffered != 4 {
		t.Fatalf("pending=%d buffered=%d, want 4", bw.PendingCount(), buffered)
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected open breaker, got %v", cb.CurrentState())
	}

	inner.fail = false
	clk.advance(2 * time.Second)
	if err := bw.WriteResultBatch(ctx, []model.IndicatorResult{result(4)}); err != nil {
		t.Fatal(err)
	}
	if bw.PendingCount() != 0 || flushed != 4 {
		t.Errorf("pending=%d flushed=%d after recovery", bw.PendingCount(), flushed)
	}
	if len(inner.batches) != 1 || len(inner.batches[0]) != 5 {
		t.Fatalf("expected one batch of 5, got %v", inner.batches)
	}
	for i, r := range inner.batches[0] {
		if r.Values[0] != float64(i) {
			t.Errorf("result %d out of order: %v", i, r.Values)
		}
	}
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	inner := &recordingWriter{fail: true}
	cb, _ := newTestBreaker(1, time.Hour)
	bw := NewBufferedWriter(inner, cb, 3)
	dropped := 0
	bw.OnDrop = func(n int) { dropped += n }

	for i := 0; i < 5; i++ {
		bw.WriteResultBatch(context.Background(), []model.IndicatorResult{result(i)})
	}
	if bw.PendingCount() != 3 || dropped != 2 {
		t.Fatalf("pending=%d dropped=%d, want 3 and 2", bw.PendingCount(), dropped)
	}
	if bw.buffer[0].Values[0] != 2 {
		t.Errorf("oldest kept = %v, want 2", bw.buffer[0].Values[0])
	}

	bw.Close()
	if !inner.closed {
		t.Error("Close must close the wrapped writer")
	}
}
