package domain

import "time"

type SessionStep string

const (
	StepAwaitItem           SessionStep = "await_item"
	StepAwaitTarget         SessionStep = "await_target"
	StepAwaitEditItem       SessionStep = "await_edit_item"
	StepAwaitEditTarget     SessionStep = "await_edit_target"
	StepAwaitRemoveItem     SessionStep = "await_remove_item"
	StepAwaitCheckItem      SessionStep = "await_check_item"
	StepAwaitBroadcastText  SessionStep = "await_broadcast_text"
	StepAwaitBroadcastMedia SessionStep = "await_broadcast_media"
)

// Session holds one user's in-progress multi-step dialog.
type Session struct {
	OwnerID   int64       `json:"owner_id"`
	Step      SessionStep `json:"step"`
	ItemID    string      `json:"item_id,omitempty"`
	Text      string      `json:"text,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
