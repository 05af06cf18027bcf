package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketType string

const (
	TicketTypeFree TicketType = "free"
	TicketTypePaid TicketType = "paid"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                string     `bun:"id,pk" json:"id"`
	Title             string     `bun:"title,notnull" json:"title"`
	Slug              string     `bun:"slug,notnull" json:"slug"`
	OrganizerID       string     `bun:"organizer_id,notnull" json:"organizer_id"`
	OrganizerName     string     `bun:"organizer_name" json:"organizer_name"`
	StartDate         time.Time  `bun:"start_date,notnull" json:"start_date"`
	EndDate           time.Time  `bun:"end_date,notnull" json:"end_date"`
	Capacity          int        `bun:"capacity,notnull" json:"capacity"`
	RegistrationCount int        `bun:"registration_count,notnull" json:"registration_count"`
	TicketType        TicketType `bun:"ticket_type,notnull" json:"ticket_type"`
	TicketPrice       float64    `bun:"ticket_price" json:"ticket_price"`
	CreatedAt         time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// IsFull reports whether every seat is taken by a confirmed registration.
func (e *Event) IsFull() bool {
	return e.RegistrationCount >= e.Capacity
}

func (e *Event) IsFree() bool {
	return e.TicketType == TicketTypeFree
}

type CreateEventRequest struct {
	Title       string     `json:"title" validate:"required,max=200,singleline"`
	Slug        string     `json:"slug" validate:"omitempty,max=200"`
	StartDate   time.Time  `json:"start_date" validate:"required"`
	EndDate     time.Time  `json:"end_date" validate:"required,gtfield=StartDate"`
	Capacity    int        `json:"capacity" validate:"required,min=1"`
	TicketType  TicketType `json:"ticket_type" validate:"required,oneof=free paid"`
	TicketPrice float64    `json:"ticket_price" validate:"required_if=TicketType paid,gte=0"`
}
