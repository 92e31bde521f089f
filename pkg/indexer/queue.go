package indexer

import (
	"sync"

	"github.com/finlex/docindexer/pkg/core"
)

// jobQueue is a three-class priority queue. Jobs are FIFO within a priority
// class and higher classes always drain first.
type jobQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[int][]*core.IndexingJob
	closed  bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{buckets: make(map[int][]*core.IndexingJob)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *jobQueue) push(job *core.IndexingJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	priority := job.Priority
	if priority < core.PriorityHigh || priority > core.PriorityLow {
		priority = core.PriorityNormal
	}
	q.buckets[priority] = append(q.buckets[priority], job)
	q.cond.Signal()
	return true
}

// pop blocks until a job is available or the queue is closed and drained.
func (q *jobQueue) pop() (*core.IndexingJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for priority := core.PriorityHigh; priority <= core.PriorityLow; priority++ {
			bucket := q.buckets[priority]
			if len(bucket) == 0 {
				continue
			}
			job := bucket[0]
			q.buckets[priority] = bucket[1:]
			return job, true
		}
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, bucket := range q.buckets {
		n += len(bucket)
	}
	return n
}

// close stops accepting jobs; waiting workers drain the remainder and exit.
func (q *jobQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
