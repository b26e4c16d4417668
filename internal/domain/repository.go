package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one data row of a row store, keyed by canonical column name.
type Row struct {
	Index  int
	Values map[string]string
}

// RowStore is a spreadsheet-shaped store addressed by a stable 1-based row
// index. Update writes all given cells of one row at once.
type RowStore interface {
	List(ctx context.Context) ([]Row, error)
	Append(ctx context.Context, values map[string]string) (int, error)
	Update(ctx context.Context, index int, values map[string]string) error
	Delete(ctx context.Context, index int) error
	Close() error
}

type WatchRepository interface {
	ListAll(ctx context.Context) ([]Watch, error)
	UpdateObservedPrice(ctx context.Context, row int, price decimal.Decimal, checkedAt time.Time) error
	SetNotified(ctx context.Context, row int, notified bool) error

	Add(ctx context.Context, watch *Watch) error
	ListByOwner(ctx context.Context, ownerID int64) ([]Watch, error)
	Find(ctx context.Context, ownerID int64, itemID string) (*Watch, error)
	UpdateTarget(ctx context.Context, row int, target decimal.Decimal) error
	Remove(ctx context.Context, row int) error
	OwnerIDs(ctx context.Context) ([]int64, error)
}

type SessionStore interface {
	Get(ctx context.Context, ownerID int64) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, ownerID int64) error
	Close() error
}
