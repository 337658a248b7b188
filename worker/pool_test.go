package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := NewPool(4)
	results := make([]int, 100)
	p.Run(context.Background(), len(results), func(i int) {
		results[i] = i * 2
	})
	for i, v := range results {
		if v != i*2 {
			t.Fatalf("slot %d = %d", i, v)
		}
	}
	if got := p.Stats().JobsCompleted; got != 100 {
		t.Errorf("JobsCompleted = %d", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(3)
	var active, peak atomic.Int32
	p.Run(context.Background(), 50, func(i int) {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	})
	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
}

func TestPoolHonorsContext(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	var done atomic.Int32
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	p.Run(ctx, 10000, func(i int) {
		time.Sleep(time.Millisecond)
		done.Add(1)
	})
	if done.Load() == 10000 {
		t.Error("cancellation should stop submission early")
	}
}

func TestPoolZeroJobs(t *testing.T) {
	p := NewPool(2)
	p.Run(context.Background(), 0, func(i int) {
		t.Error("no job should run")
	})
}
