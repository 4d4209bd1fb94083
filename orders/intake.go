package orders

import (
	"log/slog"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zircuit-labs/zkr-taskworker/worker"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

// DefaultRecentSize is how many accepted order ids Intake remembers by default.
const DefaultRecentSize = 100

// Intake is the front door for producers. It validates order ids and queues a
// ProcessingTask for every valid one.
type Intake struct {
	queue  *worker.Queue
	recent *lru.Cache[string, struct{}]
	opts   []Option
	logger *slog.Logger
}

// NewIntake creates an Intake feeding queue. The options are passed on to every
// ProcessingTask it creates. recentSize bounds the list returned by Recent.
func NewIntake(queue *worker.Queue, recentSize int, opts ...Option) (*Intake, error) {
	recent, err := lru.New[string, struct{}](recentSize)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}

	return &Intake{
		queue:  queue,
		recent: recent,
		opts:   opts,
		logger: parseOptions(opts).logger,
	}, nil
}

// Submit queues processing of the order with the given id.
// It fails only when the id is invalid.
func (i *Intake) Submit(id string) (Order, error) {
	order, err := NewOrder(id)
	if err != nil {
		return Order{}, err
	}

	i.queue.Enqueue(NewProcessingTask(order, i.opts...))
	i.recent.Add(order.ID, struct{}{})
	i.logger.Info("order queued", slog.String("order_id", order.ID))
	return order, nil
}

// Recent returns the ids of recently accepted orders, most recent first.
func (i *Intake) Recent() []string {
	keys := i.recent.Keys()
	slices.Reverse(keys)
	return keys
}

// Pending is the current length of the task queue.
func (i *Intake) Pending() int {
	return i.queue.Len()
}
