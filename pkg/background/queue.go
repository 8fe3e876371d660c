// Package background provides a cooperative scheduler for work that is
// broken into small resumable steps. A host event loop calls RunOnce
// between its own events; each call advances one registered task by a
// single step.
package background

import (
	"fmt"
	"sync"
)

// Step performs one unit of work and reports whether more work remains.
type Step func() bool

// Scheduler accepts resumable tasks. Render contexts use it to build
// caches without blocking the caller.
type Scheduler interface {
	Schedule(name string, step Step)
}

// gen changes whenever a name is scheduled again
type task struct {
	name string
	step Step
	gen  uint64
}

// Queue is a round robin Scheduler driven by explicit RunOnce calls.
type Queue struct {
	mu    sync.Mutex
	tasks []task
	next  int
	gen   uint64
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Schedule registers a task. A task already registered under the same
// name is replaced, so repeated scheduling never duplicates work.
func (q *Queue) Schedule(name string, step Step) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	for i := range q.tasks {
		if q.tasks[i].name == name {
			q.tasks[i].step, q.tasks[i].gen = step, q.gen
			return
		}
	}
	q.tasks = append(q.tasks, task{name: name, step: step, gen: q.gen})
}

// Cancel removes the named task and reports whether it was pending
func (q *Queue) Cancel(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		if q.tasks[i].name == name {
			q.removeLocked(i)
			return true
		}
	}
	return false
}

func (q *Queue) removeLocked(i int) {
	q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
	if q.next > i {
		q.next--
	}
	if q.next >= len(q.tasks) {
		q.next = 0
	}
}

// Pending returns the number of registered tasks
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// RunOnce advances the next task by one step. Tasks reporting completion
// are removed, unless they were scheduled again while the step ran. It returns false when the queue is empty.
func (q *Queue) RunOnce() bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	t := q.tasks[q.next]
	q.next = (q.next + 1) % len(q.tasks)
	q.mu.Unlock()

	// the step runs unlocked so it may schedule further tasks
	more := t.step()
	if more {
		return true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.tasks {
		if q.tasks[i].name == t.name && q.tasks[i].gen == t.gen {
			q.removeLocked(i)
			break
		}
	}
	return true
}

// Drain runs steps until every task has completed or maxSteps steps have
// run. A maxSteps of zero means no limit. It returns the number of steps.
func (q *Queue) Drain(maxSteps int) (int, error) {
	steps := 0
	for q.RunOnce() {
		steps++
		if maxSteps > 0 && steps >= maxSteps && q.Pending() > 0 {
			return steps, fmt.Errorf("background queue still has %d tasks after %d steps", q.Pending(), steps)
		}
	}
	return steps, nil
}
