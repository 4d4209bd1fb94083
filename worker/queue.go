package worker

import "sync"

// Queue is an unbounded FIFO of tasks, safe for any number of producers.
// TryDequeue is meant for a single consumer, the Processor.
type Queue struct {
	mu    sync.Mutex
	tasks []Task
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends t at the tail. It never blocks on the consumer and never fails.
// A nil task is ignored.
func (q *Queue) Enqueue(t Task) {
	if t == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

// TryDequeue removes and returns the head, or reports false if the queue is empty.
func (q *Queue) TryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	if len(q.tasks) == 0 {
		// drop the drained backing array so it can be collected
		q.tasks = nil
	}
	return t, true
}

// Len is the number of pending tasks at the time of the call.
// It is for logging only; producers may change it at any moment.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
