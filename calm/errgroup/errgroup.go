// Package errgroup is golang.org/x/sync/errgroup with panics returned as errors.
package errgroup

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zircuit-labs/zkr-taskworker/calm"
)

type Group struct {
	group *errgroup.Group
}

func New() *Group {
	return &Group{group: new(errgroup.Group)}
}

func WithContext(ctx context.Context) (*Group, context.Context) {
	group, ctx := errgroup.WithContext(ctx)
	return &Group{group: group}, ctx
}

func (g *Group) Go(f func() error) {
	g.group.Go(func() error {
		return calm.Unpanic(f)
	})
}

func (g *Group) Wait() error {
	return g.group.Wait()
}
