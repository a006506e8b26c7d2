package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countJob struct {
	counter *atomic.Int32
	err     error
}

type countResult struct {
	err error
}

func (r countResult) GetError() error { return r.err }

func (j countJob) Execute(ctx context.Context) Result {
	j.counter.Add(1)
	return countResult{err: j.err}
}

type slowJob struct {
	started  *atomic.Int32
	finished *atomic.Int32
}

func (j slowJob) Execute(ctx context.Context) Result {
	j.started.Add(1)
	select {
	case <-ctx.Done():
		return countResult{err: ctx.Err()}
	case <-time.After(50 * time.Millisecond):
		j.finished.Add(1)
		return countResult{}
	}
}

func TestPoolRunsAllJobs(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	var counter atomic.Int32
	for i := 0; i < 20; i++ {
		pool.Submit(countJob{counter: &counter})
	}

	results := pool.Wait()
	if len(results) != 20 {
		t.Fatalf("got %d results, want 20", len(results))
	}
	if counter.Load() != 20 {
		t.Errorf("%d jobs executed, want 20", counter.Load())
	}
}

func TestPoolCollectsErrors(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var counter atomic.Int32
	wantErr := errors.New("lookup failed")
	pool.Submit(countJob{counter: &counter})
	pool.Submit(countJob{counter: &counter, err: wantErr})

	var failed int
	for _, r := range pool.Wait() {
		if r.GetError() != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("got %d failed results, want 1", failed)
	}
}

func TestPoolShutdownCancelsJobs(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var started, finished atomic.Int32
	for i := 0; i < 2; i++ {
		pool.Submit(slowJob{started: &started, finished: &finished})
	}

	for started.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	pool.Shutdown()

	if finished.Load() != 0 {
		t.Errorf("%d jobs ran to completion after shutdown", finished.Load())
	}
}

func TestPoolParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	var started, finished atomic.Int32
	pool.Submit(slowJob{started: &started, finished: &finished})

	for started.Load() < 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	results := pool.Wait()
	for _, r := range results {
		if r.GetError() == nil {
			t.Error("cancelled job reported success")
		}
	}
}

func TestPoolZeroWorkersDefaultsToOne(t *testing.T) {
	pool := NewPool(context.Background(), 0)
	pool.Start()

	var counter atomic.Int32
	pool.Submit(countJob{counter: &counter})
	if results := pool.Wait(); len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}
