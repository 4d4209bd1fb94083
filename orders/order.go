// Package orders holds the order model and the background task that processes an order.
package orders

import (
	"errors"
	"strings"

	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

var ErrInvalidOrderID = errors.New("order id cannot be empty or whitespace")

// Order is a customer order. The id is never blank.
type Order struct {
	ID string `json:"id"`
}

// NewOrder validates id and returns the Order.
func NewOrder(id string) (Order, error) {
	if strings.TrimSpace(id) == "" {
		return Order{}, errclass.WrapAs(stacktrace.Wrap(ErrInvalidOrderID), errclass.Persistent)
	}
	return Order{ID: id}, nil
}
