package concurrent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerPoolLimitsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)
	var current, peak int32
	var wg sync.WaitGroup
	gate := make(chan struct{})
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func() error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				<-gate
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	close(gate)
	wg.Wait()
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}

func TestWorkerPoolHonorsCancelledContext(t *testing.T) {
	pool := NewWorkerPool(1)
	// Occupy the only slot.
	hold := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() error {
			<-hold
			return nil
		})
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Retry until the holder has the slot; a cancelled context must never run fn.
	var ran bool
	err := pool.Do(ctx, func() error {
		ran = true
		return nil
	})
	if err == nil && !ran {
		t.Fatal("Do returned nil without running fn")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(hold)
	<-done
}

func TestWorkerPoolReturnsTaskError(t *testing.T) {
	pool := NewWorkerPool(4)
	want := errors.New("boom")
	if err := pool.Do(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestForkJoinCollectsPerTaskErrors(t *testing.T) {
	failure := errors.New("task two failed")
	var order [3]int32
	errs := ForkJoin(context.Background(),
		func(context.Context) error { atomic.StoreInt32(&order[0], 1); return nil },
		func(context.Context) error { atomic.StoreInt32(&order[1], 1); return failure },
		func(context.Context) error { atomic.StoreInt32(&order[2], 1); return nil },
	)
	if len(errs) != 3 {
		t.Fatalf("len(errs) = %d, want 3", len(errs))
	}
	if errs[0] != nil || errs[2] != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !errors.Is(errs[1], failure) {
		t.Fatalf("errs[1] = %v, want %v", errs[1], failure)
	}
	for i, ran := range order {
		if ran != 1 {
			t.Fatalf("task %d did not run", i)
		}
	}
}

func TestForkJoinNoTasks(t *testing.T) {
	if errs := ForkJoin(context.Background()); len(errs) != 0 {
		t.Fatalf("errs = %v, want empty", errs)
	}
}
