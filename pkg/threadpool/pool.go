// Package threadpool provides the bounded worker pool shared by the array
// reductions and the volume renderer. Jobs are short, never block on one
// another, and write either to storage private to their thread ordinal or
// to a disjoint region of shared storage assigned before submission.
package threadpool

import (
	"fmt"
	"runtime"
	"sync"
)

// Job is a unit of work. thread is the ordinal of the worker running it,
// in [0, NumThreads()), and indexes any thread-private storage.
type Job func(thread int)

// Pool runs submitted jobs on a fixed set of worker goroutines. Jobs are
// launched through a Batch, so several callers may share one pool.
type Pool struct {
	numThreads int
	jobs       chan Job

	scratchMu   sync.Mutex
	scratch     [][]byte
	scratchBusy bool

	closeOnce sync.Once
}

// New starts a pool with numThreads workers. Values below 1 select the
// number of CPUs.
func New(numThreads int) *Pool {
	if numThreads < 1 {
		numThreads = runtime.NumCPU()
	}
	p := &Pool{
		numThreads: numThreads,
		jobs:       make(chan Job, 4*numThreads),
		scratch:    make([][]byte, numThreads),
	}
	for i := 0; i < numThreads; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(thread int) {
	for job := range p.jobs {
		job(thread)
	}
}

// NumThreads returns the number of workers
func (p *Pool) NumThreads() int {
	return p.numThreads
}

// Batch is a group of jobs that is waited for as a unit. A batch belongs
// to the goroutine that created it; other goroutines use their own.
type Batch struct {
	pool    *Pool
	pending sync.WaitGroup
	scratch [][]byte
	owned   bool
}

// NewBatch starts an empty batch on p
func (p *Pool) NewBatch() *Batch {
	return &Batch{pool: p}
}

// Launch submits a job for asynchronous execution
func (b *Batch) Launch(job Job) {
	b.pending.Add(1)
	b.pool.jobs <- func(thread int) {
		defer b.pending.Done()
		job(thread)
	}
}

// Wait blocks until every job launched on b has completed and releases
// its scratch buffers. The batch may be reused afterwards.
func (b *Batch) Wait() {
	b.pending.Wait()
	if b.owned {
		p := b.pool
		p.scratchMu.Lock()
		p.scratchBusy = false
		p.scratchMu.Unlock()
	}
	b.scratch, b.owned = nil, false
}

// Scratch returns one private buffer of at least size bytes per thread,
// valid until Wait. It must be called before launching the jobs that use
// it; a job may only touch the buffer at its own thread ordinal. The
// pool's buffers are reused when no other batch holds them.
func (b *Batch) Scratch(size int) [][]byte {
	if b.scratch == nil {
		p := b.pool
		p.scratchMu.Lock()
		if !p.scratchBusy {
			p.scratchBusy = true
			b.scratch, b.owned = p.scratch, true
		} else {
			b.scratch = make([][]byte, p.numThreads)
		}
		p.scratchMu.Unlock()
	}
	for i, buf := range b.scratch {
		if cap(buf) < size {
			b.scratch[i] = make([]byte, size)
		}
		b.scratch[i] = b.scratch[i][:size]
	}
	return b.scratch
}

// Close stops the workers. Jobs must not be launched afterwards.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
}

var (
	sharedMu   sync.Mutex
	shared     *Pool
	sharedSize int
)

// SetSharedSize fixes the size of the shared pool. It fails once the
// shared pool exists.
func SetSharedSize(numThreads int) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return fmt.Errorf("shared pool already created with %d threads", shared.numThreads)
	}
	sharedSize = numThreads
	return nil
}

// Shared returns the process wide pool, creating it on first use
func Shared() *Pool {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = New(sharedSize)
	}
	return shared
}
