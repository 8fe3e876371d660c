package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestLaunchAndWait verifies every job runs once with a valid thread ordinal
func TestLaunchAndWait(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	if pool.NumThreads() != 4 {
		t.Fatalf("Expected 4 threads, got %d", pool.NumThreads())
	}

	const numJobs = 100
	batch := pool.NewBatch()
	var ran atomic.Int32
	var badThread atomic.Bool
	results := make([]int, numJobs)
	for i := 0; i < numJobs; i++ {
		batch.Launch(func(thread int) {
			if thread < 0 || thread >= 4 {
				badThread.Store(true)
			}
			results[i] = i * i
			ran.Add(1)
		})
	}
	batch.Wait()

	if ran.Load() != numJobs {
		t.Errorf("Expected %d jobs to run, got %d", numJobs, ran.Load())
	}
	if badThread.Load() {
		t.Error("Job received thread ordinal out of range")
	}
	for i, r := range results {
		if r != i*i {
			t.Errorf("Job %d wrote %d", i, r)
		}
	}
}

// TestThreadPrivateAccumulators verifies per-thread storage is not shared
func TestThreadPrivateAccumulators(t *testing.T) {
	pool := New(3)
	defer pool.Close()

	sums := make([]int, pool.NumThreads())
	batch := pool.NewBatch()
	for i := 1; i <= 1000; i++ {
		batch.Launch(func(thread int) {
			sums[thread] += i
		})
	}
	batch.Wait()

	total := 0
	for _, s := range sums {
		total += s
	}
	if total != 500500 {
		t.Errorf("Expected total 500500, got %d", total)
	}
}

// TestScratch verifies scratch buffers are sized per thread and reused
// by later batches
func TestScratch(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	batch := pool.NewBatch()
	bufs := batch.Scratch(16)
	if len(bufs) != 2 || len(bufs[0]) != 16 || len(bufs[1]) != 16 {
		t.Fatalf("Unexpected scratch layout")
	}
	bufs[0][0] = 7

	// a batch running alongside gets its own buffers
	other := pool.NewBatch()
	if others := other.Scratch(16); &others[0][0] == &bufs[0][0] {
		t.Error("Concurrent batches should not share scratch buffers")
	}
	other.Wait()
	batch.Wait()

	again := pool.NewBatch()
	defer again.Wait()
	reused := again.Scratch(8)
	if len(reused[0]) != 8 || reused[0][0] != 7 {
		t.Error("Scratch should reuse released buffers")
	}
}

// TestConcurrentBatches runs many batches on one pool at once
func TestConcurrentBatches(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	const callers, rounds, jobs = 8, 50, 10
	var wg sync.WaitGroup
	var bad atomic.Int32
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				batch := pool.NewBatch()
				var done atomic.Int32
				for j := 0; j < jobs; j++ {
					batch.Launch(func(int) {
						done.Add(1)
					})
				}
				batch.Wait()
				if done.Load() != jobs {
					bad.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if bad.Load() != 0 {
		t.Errorf("%d batches returned before their jobs finished", bad.Load())
	}
}

// TestSharedPool verifies lazy creation and size locking
func TestSharedPool(t *testing.T) {
	first := Shared()
	if first != Shared() {
		t.Error("Shared should return the same pool")
	}
	if err := SetSharedSize(2); err == nil {
		t.Error("SetSharedSize should fail after creation")
	}
}
