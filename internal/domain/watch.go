package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WatchState string

const (
	StateArmed     WatchState = "ARMED"
	StateTriggered WatchState = "TRIGGERED"
)

// Watch is one persisted (owner, item, target) row. Row is the row-store
// index the record was read from and is only meaningful for the snapshot it
// came with.
type Watch struct {
	Row         int
	OwnerID     int64
	ItemID      string
	TargetPrice decimal.Decimal
	LastPrice   *decimal.Decimal
	Notified    bool
	CheckedAt   *time.Time
}

func (w Watch) State() WatchState {
	if w.Notified {
		return StateTriggered
	}
	return StateArmed
}
