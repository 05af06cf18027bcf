package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "waiting"
	WaitlistOffered   WaitlistStatus = "offered"
	WaitlistPromoted  WaitlistStatus = "promoted"
	WaitlistExpired   WaitlistStatus = "expired"
	WaitlistCancelled WaitlistStatus = "cancelled"
)

// ActiveWaitlistStatuses are the non-terminal states; a user holds at most one
// entry in these states per event.
var ActiveWaitlistStatuses = []WaitlistStatus{WaitlistWaiting, WaitlistOffered}

var waitlistTransitions = map[WaitlistStatus][]WaitlistStatus{
	WaitlistWaiting: {WaitlistPromoted, WaitlistOffered, WaitlistCancelled},
	WaitlistOffered: {WaitlistPromoted, WaitlistCancelled, WaitlistExpired},
}

func (s WaitlistStatus) IsActive() bool {
	return s == WaitlistWaiting || s == WaitlistOffered
}

func (s WaitlistStatus) IsTerminal() bool {
	switch s {
	case WaitlistPromoted, WaitlistExpired, WaitlistCancelled:
		return true
	}
	return false
}

func (s WaitlistStatus) CanTransitionTo(next WaitlistStatus) bool {
	for _, allowed := range waitlistTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type WaitlistEntry struct {
	bun.BaseModel `bun:"table:waitlist_entries"`

	ID            string         `bun:"id,pk" json:"id"`
	EventID       string         `bun:"event_id,notnull" json:"event_id"`
	UserID        string         `bun:"user_id,notnull" json:"user_id"`
	AttendeeName  string         `bun:"attendee_name,notnull" json:"attendee_name"`
	AttendeeEmail string         `bun:"attendee_email,notnull" json:"attendee_email"`
	Status        WaitlistStatus `bun:"status,notnull" json:"status"`
	JoinedAt      time.Time      `bun:"joined_at,notnull" json:"joined_at"`
	OfferedAt     *time.Time     `bun:"offered_at" json:"offered_at,omitempty"`
	PromotedAt    *time.Time     `bun:"promoted_at" json:"promoted_at,omitempty"`
	ClosedAt      *time.Time     `bun:"closed_at" json:"closed_at,omitempty"`
}

func (w *WaitlistEntry) transition(next WaitlistStatus) error {
	if !w.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, next)
	}
	w.Status = next
	return nil
}

// Offer reserves the front of the line for a paid event; no seat is held yet.
func (w *WaitlistEntry) Offer(at time.Time) error {
	if err := w.transition(WaitlistOffered); err != nil {
		return err
	}
	w.OfferedAt = &at
	return nil
}

// Promote marks the entry as having obtained a confirmed registration.
func (w *WaitlistEntry) Promote(at time.Time) error {
	if err := w.transition(WaitlistPromoted); err != nil {
		return err
	}
	w.PromotedAt = &at
	return nil
}

func (w *WaitlistEntry) Cancel(at time.Time) error {
	if err := w.transition(WaitlistCancelled); err != nil {
		return err
	}
	w.ClosedAt = &at
	return nil
}

// Expire is reserved for an offer timeout policy; nothing calls it today.
func (w *WaitlistEntry) Expire(at time.Time) error {
	if err := w.transition(WaitlistExpired); err != nil {
		return err
	}
	w.ClosedAt = &at
	return nil
}

type WaitlistJoinResult struct {
	EntryID  string `json:"waitlist_id"`
	Position int    `json:"position"`
}

// WaitlistPosition is computed at read time. Offered entries report position 0.
type WaitlistPosition struct {
	Entry        *WaitlistEntry `json:"entry"`
	Position     int            `json:"position"`
	TotalWaiting int            `json:"total_waiting"`
	IsOffered    bool           `json:"is_offered"`
}

type WaitlistEntryWithEvent struct {
	WaitlistEntry
	Event *Event `json:"event"`
}
