package usecase

import "github.com/shopspring/decimal"

// Action is what a single observation asks the poller to do with a watch.
type Action int

const (
	ActionNone Action = iota
	ActionNotify
	ActionRearm
)

func (a Action) String() string {
	switch a {
	case ActionNotify:
		return "notify"
	case ActionRearm:
		return "rearm"
	default:
		return "none"
	}
}

// Evaluate applies the ARMED/TRIGGERED hysteresis. A price at or below target
// notifies once per dip; a price strictly above target re-arms silently.
func Evaluate(notified bool, price, target decimal.Decimal) Action {
	atOrBelow := price.Cmp(target) <= 0
	switch {
	case atOrBelow && !notified:
		return ActionNotify
	case !atOrBelow && notified:
		return ActionRearm
	default:
		return ActionNone
	}
}
