package models

type PromotionKind string

const (
	PromotionFree PromotionKind = "free"
	PromotionPaid PromotionKind = "paid"
)

const (
	PromotionReasonEventFull  = "event still full"
	PromotionReasonQueueEmpty = "no one on waitlist"
	PromotionReasonFailed     = "promotion failed"
)

// PromotionOutcome describes what the promotion engine did for one freed slot.
// A free promotion carries the new registration; a paid one only the offer.
type PromotionOutcome struct {
	Promoted        bool          `json:"promoted"`
	Kind            PromotionKind `json:"kind,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Error           string        `json:"error,omitempty"`
	WaitlistEntryID string        `json:"waitlist_id,omitempty"`
	UserID          string        `json:"user_id,omitempty"`
	AttendeeName    string        `json:"attendee_name,omitempty"`
	AttendeeEmail   string        `json:"attendee_email,omitempty"`
	RegistrationID  string        `json:"registration_id,omitempty"`
	QRCode          string        `json:"qr_code,omitempty"`
	TicketPrice     float64       `json:"ticket_price,omitempty"`
}
