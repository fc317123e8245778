package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("queue is closed")

// Kind distinguishes the two page kinds the crawl traverses.
type Kind string

const (
	KindListing Kind = "listing"
	KindProduct Kind = "product"
)

// Task is one URL waiting on the crawl frontier.
type Task struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTask(url string, kind Kind) *Task {
	return &Task{
		ID:        uuid.NewString(),
		URL:       url,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

// Queue is the crawl frontier. Pop blocks until a task is available, the
// context is cancelled, or the queue is closed and drained.
type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue is a FIFO frontier. FIFO order gives the crawl its
// breadth-first shape. Blocked Pops wait on a wake channel that Push and
// Close replace under the lock, so a cancelled Pop leaves the queue usable.
type InMemoryQueue struct {
	tasks  []*Task
	mu     sync.Mutex
	wake   chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make([]*Task, 0),
		wake:  make(chan struct{}),
	}
}

// notify wakes every blocked Pop. Callers must hold q.mu.
func (q *InMemoryQueue) notify() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, task)
	q.notify()

	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	q.mu.Lock()

	for len(q.tasks) == 0 && !q.closed {
		// Capture the current wake channel before releasing the lock; a
		// Push racing with the unlock closes this same channel, so the
		// wakeup cannot be lost.
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}

		q.mu.Lock()
	}

	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.mu.Unlock()

	return task, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notify()

	return nil
}
