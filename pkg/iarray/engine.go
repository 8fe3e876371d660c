package iarray

import (
	"arrayvis/pkg/threadpool"
)

// Engine runs reductions and transforms on a thread pool. The zero value
// uses the shared process wide pool.
type Engine struct {
	Pool *threadpool.Pool
}

// NewEngine returns an engine bound to pool
func NewEngine(pool *threadpool.Pool) *Engine {
	return &Engine{Pool: pool}
}

var defaultEngine = &Engine{}

func (e *Engine) pool() *threadpool.Pool {
	if e.Pool == nil {
		return threadpool.Shared()
	}
	return e.Pool
}

// runJob processes a flat range of n elements starting at addr
type runJob func(thread, addr, n int)

// blockJob processes the inner block whose outer address is addr
type blockJob func(thread, addr int)

// contiguous splits a full array view into one flat range per thread.
// Each job sees elements spaced by the packet size.
func (e *Engine) contiguous(v *View, job runJob) {
	pool := e.pool()
	total := v.NumElements()
	threads := pool.NumThreads()
	stride := v.strides[len(v.strides)-1]
	if threads < 2 || total < threads {
		job(0, v.base, total)
		return
	}
	chunk := total / threads
	batch := pool.NewBatch()
	for i := 0; i < threads; i++ {
		start := i * chunk
		n := chunk
		if i == threads-1 {
			n = total - start
		}
		addr := v.base + start*stride
		batch.Launch(func(thread int) {
			job(thread, addr, n)
		})
	}
	batch.Wait()
}

// scatter partitions v along all but its innermost maxDim dimensions and
// calls job once per inner block. Partition starts are found with
// NextElement. Views no larger than maxDim dimensions, and single
// threaded pools, run inline.
func (e *Engine) scatter(v *View, maxDim int, job blockJob) {
	n := len(v.lengths)
	inner := maxDim
	if inner > n {
		inner = n
	}
	outer := n - inner
	blockSize := 1
	for d := outer; d < n; d++ {
		blockSize *= v.lengths[d]
	}
	numBlocks := v.NumElements() / blockSize

	pool := e.pool()
	threads := pool.NumThreads()
	if outer == 0 || threads < 2 || numBlocks < 2 {
		coords := make([]int, n)
		for ok := true; ok; _, ok = v.NextElement(coords, blockSize) {
			job(0, v.outerAddress(coords, outer))
		}
		return
	}

	numJobs := threads
	if numJobs > numBlocks {
		numJobs = numBlocks
	}
	coords := make([]int, n)
	first := 0
	batch := pool.NewBatch()
	for j := 0; j < numJobs; j++ {
		last := (j + 1) * numBlocks / numJobs
		start := append([]int(nil), coords...)
		count := last - first
		batch.Launch(func(thread int) {
			c := start
			for i := 0; i < count; i++ {
				job(thread, v.outerAddress(c, outer))
				v.NextElement(c, blockSize)
			}
		})
		v.NextElement(coords, count*blockSize)
		first = last
	}
	batch.Wait()
}
