// Package queue carries analysis jobs from intake to the job runner.
package queue

import (
	"context"
	"sync"
)

// Job asks for one stored game to be analyzed.
type Job struct {
	GameID string `json:"gameId"`
}

// Queue is a FIFO of jobs. Take returns nil, nil when the queue is empty.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Take(ctx context.Context) (*Job, error)
}

// MemoryQueue is an in-process queue for tests and single-binary setups.
type MemoryQueue struct {
	mu    sync.Mutex
	queue []Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{queue: make([]Job, 0)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, job)
	return nil
}

func (q *MemoryQueue) Take(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil, nil
	}
	job := q.queue[0]
	q.queue = q.queue[1:]
	return &job, nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
