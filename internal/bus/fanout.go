// Package bus broadcasts one channel to many subscribers.
package bus

import (
	"context"
	"sync"
)

// FanOut broadcasts values from a single input channel to N output channels.
// A blocking subscriber holds back the whole fan-out, so every value reaches
// it; a lossy subscriber whose channel is full misses the value instead.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []output[T]

	// OnDrop is called when a value is dropped for a lossy subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

type output[T any] struct {
	ch    chan T
	lossy bool
}

// New creates an empty FanOut.
func New[T any]() *FanOut[T] {
	return &FanOut[T]{}
}

// Subscribe creates and returns a new output channel with the given buffer.
// Subscribe must not be called once Run has started.
func (f *FanOut[T]) Subscribe(bufSize int, lossy bool) <-chan T {
	ch := make(chan T, bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, output[T]{ch: ch, lossy: lossy})
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers. Every output is
// closed when input is closed or ctx is cancelled.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, o := range f.outputs {
			close(o.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			if !f.send(ctx, v) {
				return
			}
		}
	}
}

func (f *FanOut[T]) send(ctx context.Context, v T) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, o := range f.outputs {
		if o.lossy {
			select {
			case o.ch <- v:
			default:
				if f.OnDrop != nil {
					f.OnDrop(i)
				}
			}
			continue
		}
		select {
		case o.ch <- v:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// ChannelStat is the length and capacity of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns (length, capacity) for each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, o := range f.outputs {
		stats[i] = ChannelStat{Len: len(o.ch), Cap: cap(o.ch)}
	}
	return stats
}
