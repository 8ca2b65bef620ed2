// Package parallel provides the worker pool used to spread row-wise and
// site-wise work across cores.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines consuming work items.
//
// Each worker owns a queue; idle workers steal from the others so that
// uneven bands (rows with many region boundaries) do not stall a batch.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

// drain runs whatever is left in a queue so that pending ExecuteAll calls
// can complete during Close.
func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every work item and returns once all of them finished.
// On a closed pool the items run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var completion sync.WaitGroup
	completion.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer completion.Done()
			fn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	completion.Wait()
}

// ForRange splits [0, n) into contiguous bands and calls fn once per band,
// in parallel. Bands never overlap, so fn may write to disjoint slices of a
// shared buffer without locking. A nil pool runs fn(0, n) inline.
func (p *WorkerPool) ForRange(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if p == nil {
		fn(0, n)
		return
	}
	bands := Bands(n, p.workers)
	if len(bands) == 1 {
		fn(0, n)
		return
	}
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b.Lo, b.Hi) }
	}
	p.ExecuteAll(work)
}

// ForBands calls fn once per band, in parallel, passing the band's
// position in bands. A nil pool runs the bands in order on the caller.
func (p *WorkerPool) ForBands(bands []Band, fn func(i int, b Band)) {
	if p == nil || len(bands) == 1 {
		for i, b := range bands {
			fn(i, b)
		}
		return
	}
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(i, b) }
	}
	p.ExecuteAll(work)
}

// Band is a half-open index range [Lo, Hi).
type Band struct {
	Lo, Hi int
}

// Bands partitions [0, n) into at most 4*workers contiguous bands of
// near-equal size. The result is deterministic for a given n and workers,
// which keeps floating-point reductions over bands reproducible.
func Bands(n, workers int) []Band {
	return Split(n, max(workers, 1)*4)
}

// Split partitions [0, n) into min(n, parts) contiguous bands of
// near-equal size.
func Split(n, parts int) []Band {
	if n <= 0 {
		return nil
	}
	count := min(n, max(parts, 1))
	out := make([]Band, count)
	for i := range count {
		out[i] = Band{Lo: i * n / count, Hi: (i + 1) * n / count}
	}
	return out
}

// Close stops the workers once their queues are drained.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers, or 1 for a nil pool.
func (p *WorkerPool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
