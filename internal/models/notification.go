package models

import "time"

type NotificationType string

const (
	NotificationRegistrationCreated   NotificationType = "registration.created"
	NotificationRegistrationCancelled NotificationType = "registration.cancelled"
	NotificationRegistrationPaid      NotificationType = "registration.paid"
	NotificationWaitlistJoined        NotificationType = "waitlist.joined"
	NotificationWaitlistPromoted      NotificationType = "waitlist.promoted"
	NotificationWaitlistOffered       NotificationType = "waitlist.offered"
)

var NotificationTypes = []NotificationType{
	NotificationRegistrationCreated,
	NotificationRegistrationCancelled,
	NotificationRegistrationPaid,
	NotificationWaitlistJoined,
	NotificationWaitlistPromoted,
	NotificationWaitlistOffered,
}

// Notification is the payload published for every attendee-facing change.
type Notification struct {
	Type            NotificationType `json:"type"`
	EventID         string           `json:"event_id"`
	EventTitle      string           `json:"event_title"`
	EventStart      time.Time        `json:"event_start"`
	RegistrationID  string           `json:"registration_id,omitempty"`
	WaitlistEntryID string           `json:"waitlist_id,omitempty"`
	AttendeeName    string           `json:"attendee_name"`
	AttendeeEmail   string           `json:"attendee_email"`
	QRCode          string           `json:"qr_code,omitempty"`
	PaymentStatus   PaymentStatus    `json:"payment_status,omitempty"`
	Position        int              `json:"position,omitempty"`
	TicketPrice     float64          `json:"ticket_price,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

// Key groups related notifications onto one partition.
func (n Notification) Key() string {
	if n.RegistrationID != "" {
		return n.RegistrationID
	}
	if n.WaitlistEntryID != "" {
		return n.WaitlistEntryID
	}
	return n.EventID
}
