package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentMethod string

const (
	PaymentMethodOnline  PaymentMethod = "online"
	PaymentMethodOffline PaymentMethod = "offline"
	PaymentMethodFree    PaymentMethod = "free"
)

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusFree    PaymentStatus = "free"
)

type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID               string             `bun:"id,pk" json:"id"`
	EventID          string             `bun:"event_id,notnull" json:"event_id"`
	UserID           string             `bun:"user_id,notnull" json:"user_id"`
	AttendeeName     string             `bun:"attendee_name,notnull" json:"attendee_name"`
	AttendeeEmail    string             `bun:"attendee_email,notnull" json:"attendee_email"`
	QRCode           string             `bun:"qr_code,notnull,unique" json:"qr_code"`
	CheckedIn        bool               `bun:"checked_in,notnull" json:"checked_in"`
	CheckedInAt      *time.Time         `bun:"checked_in_at" json:"checked_in_at,omitempty"`
	PaymentMethod    PaymentMethod      `bun:"payment_method,notnull" json:"payment_method"`
	PaymentStatus    PaymentStatus      `bun:"payment_status,notnull" json:"payment_status"`
	PaymentReference string             `bun:"payment_reference" json:"payment_reference,omitempty"`
	AmountPaid       float64            `bun:"amount_paid" json:"amount_paid"`
	PaidAt           *time.Time         `bun:"paid_at" json:"paid_at,omitempty"`
	Status           RegistrationStatus `bun:"status,notnull" json:"status"`
	RegisteredAt     time.Time          `bun:"registered_at,notnull" json:"registered_at"`
	CancelledAt      *time.Time         `bun:"cancelled_at" json:"cancelled_at,omitempty"`
}

func (r *Registration) IsConfirmed() bool {
	return r.Status == RegistrationConfirmed
}

// ResolvePayment derives the stored payment method and status for a new
// registration. Free events and the free method never leave a balance due.
func ResolvePayment(ticketType TicketType, method PaymentMethod) (PaymentMethod, PaymentStatus) {
	if ticketType == TicketTypeFree || method == PaymentMethodFree {
		return PaymentMethodFree, PaymentStatusFree
	}
	return method, PaymentStatusPending
}

type AttendeeInfo struct {
	Name  string `json:"attendee_name" validate:"required,max=200"`
	Email string `json:"attendee_email" validate:"required,email"`
}

type RegisterRequest struct {
	AttendeeInfo
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=online offline free"`
}

type ClaimOfferRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=online offline"`
}

type CheckInRequest struct {
	QRCode string `json:"qr_code" validate:"required"`
}

type RegistrationResult struct {
	RegistrationID string `json:"registration_id"`
	QRCode         string `json:"qr_code"`
}

type MarkPaidResult struct {
	AlreadyPaid  bool          `json:"already_paid"`
	Registration *Registration `json:"registration"`
}

// CheckInResult is returned for every scan of a known ticket. A repeated scan
// is an expected outcome at the door and is reported with Success=false.
type CheckInResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Registration *Registration `json:"registration"`
}

type CancelResult struct {
	Cancelled *Registration     `json:"cancelled_registration"`
	Promotion *PromotionOutcome `json:"promotion"`
}

type RegistrationWithEvent struct {
	Registration
	Event *Event `json:"event"`
}
