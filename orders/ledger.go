package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/zircuit-labs/zkr-taskworker/xerrors/errclass"
	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

// ProcessedOrder is a row of the processed_orders table.
type ProcessedOrder struct {
	bun.BaseModel `bun:"table:processed_orders,alias:po"`

	ID          string    `bun:"id,pk"`
	ProcessedAt time.Time `bun:"processed_at,notnull"`
}

// Ledger stores processed orders in Postgres.
type Ledger struct {
	db bun.IDB
}

var _ Recorder = (*Ledger)(nil)

// NewLedger creates a Ledger on db, which must use the pgdialect.
func NewLedger(db bun.IDB) *Ledger {
	return &Ledger{db: db}
}

// Record stores id as processed at processedAt. Recording the same id again
// keeps the first entry.
func (l *Ledger) Record(ctx context.Context, id string, processedAt time.Time) error {
	_, err := l.insertQuery(id, processedAt).Exec(ctx)
	if err != nil {
		return errclass.WrapAs(stacktrace.Wrap(err), errclass.Transient)
	}
	return nil
}

// Recent returns up to limit processed orders, most recent first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]ProcessedOrder, error) {
	var rows []ProcessedOrder
	err := l.recentQuery(limit).Scan(ctx, &rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errclass.WrapAs(stacktrace.Wrap(err), errclass.Transient)
	}
	return rows, nil
}

func (l *Ledger) insertQuery(id string, processedAt time.Time) *bun.InsertQuery {
	return l.db.NewInsert().
		Model(&ProcessedOrder{ID: id, ProcessedAt: processedAt.UTC()}).
		On("CONFLICT (id) DO NOTHING")
}

func (l *Ledger) recentQuery(limit int) *bun.SelectQuery {
	q := l.db.NewSelect().
		Model((*ProcessedOrder)(nil)).
		Order("po.processed_at DESC", "po.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}
