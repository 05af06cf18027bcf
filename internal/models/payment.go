package models

const CheckoutTypeEventTicket = "event_ticket"

// CheckoutRequest is what the payment provider needs to open a hosted checkout.
type CheckoutRequest struct {
	RegistrationID string
	EventID        string
	UserID         string
	EventTitle     string
	Amount         float64
	Currency       string
	SuccessURL     string
	CancelURL      string
}

// CheckoutSession is the provider-neutral view of a hosted checkout.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (s *CheckoutSession) IsPaid() bool {
	return s != nil && s.PaymentStatus == "paid"
}

type VerifyPaymentRequest struct {
	RegistrationID string `json:"registration_id" validate:"required"`
	SessionID      string `json:"session_id"`
}

type VerifyPaymentResult struct {
	Status         string `json:"status"`
	RegistrationID string `json:"registration_id"`
	AlreadyPaid    bool   `json:"already_paid"`
}

const (
	VerifyStatusVerified          = "verified"
	VerifyStatusAlreadyPaid       = "already_paid"
	VerifyStatusPaymentIncomplete = "payment_incomplete"
)
