package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if want := runtime.GOMAXPROCS(0); pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), want)
	}
}

func TestWorkerPool_NilWorkers(t *testing.T) {
	var pool *WorkerPool
	if pool.Workers() != 1 {
		t.Errorf("nil pool Workers() = %d, want 1", pool.Workers())
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var counter atomic.Int64
	pool.ExecuteAll([]func(){
		func() { counter.Add(1) },
		func() { counter.Add(1) },
	})
	if counter.Load() != 2 {
		t.Errorf("closed pool ran %d items, want 2 inline", counter.Load())
	}
}

func TestWorkerPool_CloseTwice(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("pool still running after Close")
	}
}

// =============================================================================
// ForRange / Bands Tests
// =============================================================================

func TestBands(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		workers int
		want    int
	}{
		{"empty", 0, 4, 0},
		{"fewer items than bands", 3, 4, 3},
		{"many items", 1000, 2, 8},
		{"zero workers", 10, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bands := Bands(tt.n, tt.workers)
			if len(bands) != tt.want {
				t.Fatalf("len(Bands(%d, %d)) = %d, want %d", tt.n, tt.workers, len(bands), tt.want)
			}
			next := 0
			for _, b := range bands {
				if b.Lo != next || b.Hi <= b.Lo {
					t.Fatalf("band %+v does not continue at %d", b, next)
				}
				next = b.Hi
			}
			if next != tt.n {
				t.Errorf("bands end at %d, want %d", next, tt.n)
			}
		})
	}
}

func TestWorkerPool_ForRangeCoversEveryIndex(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	const n = 517
	hits := make([]int32, n)
	pool.ForRange(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, h)
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		n, parts, want int
	}{
		{10, 3, 3},
		{2, 5, 2},
		{7, 0, 1},
		{0, 3, 0},
	}
	for _, tt := range tests {
		if got := len(Split(tt.n, tt.parts)); got != tt.want {
			t.Errorf("len(Split(%d, %d)) = %d, want %d", tt.n, tt.parts, got, tt.want)
		}
	}
}

func TestWorkerPool_ForBandsPassesIndex(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	bands := Split(100, 6)
	seen := make([]Band, len(bands))
	pool.ForBands(bands, func(i int, b Band) {
		seen[i] = b
	})
	for i := range bands {
		if seen[i] != bands[i] {
			t.Errorf("band %d = %+v, want %+v", i, seen[i], bands[i])
		}
	}
}

func TestWorkerPool_ForRangeNilPool(t *testing.T) {
	var pool *WorkerPool
	calls := 0
	pool.ForRange(10, func(lo, hi int) {
		calls++
		if lo != 0 || hi != 10 {
			t.Errorf("nil pool band = [%d,%d), want [0,10)", lo, hi)
		}
	})
	if calls != 1 {
		t.Errorf("nil pool made %d calls, want 1", calls)
	}
}

func BenchmarkWorkerPool_ForRange(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	buf := make([]float64, 1<<16)
	b.ResetTimer()
	for range b.N {
		pool.ForRange(len(buf), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				buf[i] += 1
			}
		})
	}
}
