package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func startPool(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(cancel)
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name      string
		seed      int
		tier      uint64
		count     int
		wantOK    bool
		wantAfter int
	}{
		{"exact fit", 4, 1, 4, true, 0},
		{"partial", 10, 1, 3, true, 7},
		{"insufficient", 2, 1, 3, false, 2},
		{"unknown tier", 5, 9, 1, false, 5},
		{"zero count", 5, 1, 0, false, 5},
		{"negative count", 5, 1, -2, false, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDirect(map[uint64]int{1: tt.seed}, 0, zap.NewNop())
			startPool(t, p)
			ctx := context.Background()

			ok, err := p.Reserve(ctx, tt.tier, tt.count)
			if err != nil {
				t.Fatalf("Reserve: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("Reserve ok = %v, want %v", ok, tt.wantOK)
			}
			got, err := p.Peek(ctx, 1)
			if err != nil {
				t.Fatalf("Peek: %v", err)
			}
			if got != tt.wantAfter {
				t.Fatalf("counter after Reserve = %d, want %d", got, tt.wantAfter)
			}
		})
	}
}

func TestPeekManyIncludesUnknownAsZero(t *testing.T) {
	p := NewDirect(map[uint64]int{1: 3, 2: 0}, 0, zap.NewNop())
	startPool(t, p)

	got, err := p.PeekMany(context.Background(), []uint64{1, 2, 7})
	if err != nil {
		t.Fatalf("PeekMany: %v", err)
	}
	want := map[uint64]int{1: 3, 2: 0, 7: 0}
	if len(got) != len(want) {
		t.Fatalf("PeekMany len = %d, want %d (%v)", len(got), len(want), got)
	}
	for id, n := range want {
		if got[id] != n {
			t.Errorf("PeekMany[%d] = %d, want %d", id, got[id], n)
		}
	}
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	const capacity = 50
	p := NewDirect(map[uint64]int{1: capacity}, 8, zap.NewNop())
	startPool(t, p)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := p.Reserve(context.Background(), 1, 1)
			if err != nil {
				t.Errorf("Reserve: %v", err)
				return
			}
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != capacity {
		t.Fatalf("granted = %d, want %d", got, capacity)
	}
	left, _ := p.Peek(context.Background(), 1)
	if left != 0 {
		t.Fatalf("counter = %d, want 0", left)
	}
}

func TestReleaseRestoresReservedSeats(t *testing.T) {
	p := NewDirect(map[uint64]int{1: 5}, 0, zap.NewNop())
	startPool(t, p)
	ctx := context.Background()

	if ok, _ := p.Reserve(ctx, 1, 5); !ok {
		t.Fatal("Reserve failed")
	}
	if err := p.Release(ctx, 1, 5); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n, _ := p.Peek(ctx, 1); n != 5 {
		t.Fatalf("counter = %d, want 5", n)
	}
}

func TestRecoverPartialUnknown(t *testing.T) {
	p := NewRecycled([]uint64{1, 2}, 0, zap.NewNop())
	startPool(t, p.Pool)
	ctx := context.Background()

	ok, err := p.Recover(ctx, map[uint64]int{1: 2, 3: 4})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if ok {
		t.Fatal("Recover ok = true with unknown tier, want false")
	}
	if n, _ := p.Peek(ctx, 1); n != 2 {
		t.Fatalf("known tier counter = %d, want 2", n)
	}
	if n, _ := p.Peek(ctx, 3); n != 0 {
		t.Fatalf("unknown tier counter = %d, want 0", n)
	}

	all, err := p.PeekAll(ctx)
	if err != nil {
		t.Fatalf("PeekAll: %v", err)
	}
	if len(all) != 1 || all[1] != 2 {
		t.Fatalf("PeekAll = %v, want map[1:2]", all)
	}
}

func TestRecoverThenReserve(t *testing.T) {
	p := NewRecycled([]uint64{1}, 0, zap.NewNop())
	startPool(t, p.Pool)
	ctx := context.Background()

	if ok, _ := p.Reserve(ctx, 1, 2); ok {
		t.Fatal("Reserve on empty recycled pool succeeded")
	}
	if ok, _ := p.Recover(ctx, map[uint64]int{1: 2}); !ok {
		t.Fatal("Recover failed")
	}
	if ok, _ := p.Reserve(ctx, 1, 2); !ok {
		t.Fatal("Reserve after Recover failed")
	}
	if n, _ := p.Peek(ctx, 1); n != 0 {
		t.Fatalf("counter = %d, want 0", n)
	}
}

func TestStoppedPoolReturnsErrClosed(t *testing.T) {
	p := NewDirect(map[uint64]int{1: 1}, 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if _, err := p.Reserve(context.Background(), 1, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Reserve after stop err = %v, want ErrClosed", err)
	}
}

func TestCallerContextBeforeEnqueue(t *testing.T) {
	// queue of one with no actor running: first request fills the queue,
	// second must give up on its own context.
	p := NewDirect(map[uint64]int{1: 1}, 1, zap.NewNop())
	p.reqs <- request{apply: func(map[uint64]int) {}, done: make(chan struct{})}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Peek(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Peek err = %v, want DeadlineExceeded", err)
	}
}
