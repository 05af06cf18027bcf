package models

import "errors"

var (
	ErrEventNotFound             = errors.New("event not found")
	ErrRegistrationNotFound      = errors.New("registration not found")
	ErrWaitlistEntryNotFound     = errors.New("no active waitlist entry found")
	ErrUserNotFound              = errors.New("user not found")
	ErrInvalidQRCode             = errors.New("invalid QR code")
	ErrTicketForOtherEvent       = errors.New("ticket is for a different event")
	ErrUnauthorized              = errors.New("not authorized for this resource")
	ErrCapacityExceeded          = errors.New("event is full")
	ErrAlreadyRegistered         = errors.New("already registered for this event")
	ErrAlreadyOnWaitlist         = errors.New("already on the waitlist for this event")
	ErrEventNotFull              = errors.New("event is not full, register directly")
	ErrNoActiveOffer             = errors.New("no active offer found, the spot may have expired")
	ErrRegistrationNotActive     = errors.New("registration is not confirmed")
	ErrPaymentNotRequired        = errors.New("registration has no payment due")
	ErrInvalidPaymentMethod      = errors.New("invalid payment method")
	ErrInvalidTransition         = errors.New("invalid waitlist transition")
	ErrDuplicateQRCode           = errors.New("qr code already issued")
	ErrPromotionContention       = errors.New("waitlist promotion lost every race for the next entry")
	ErrCheckoutInProgress        = errors.New("a checkout for this registration is already in progress")
	ErrPaymentProviderNotEnabled = errors.New("online payments are not configured")
)

// IsNotFound reports whether err is one of the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrWaitlistEntryNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvalidQRCode)
}

// IsConflict reports whether err is a rejected precondition on current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrAlreadyOnWaitlist) ||
		errors.Is(err, ErrEventNotFull) ||
		errors.Is(err, ErrNoActiveOffer) ||
		errors.Is(err, ErrTicketForOtherEvent) ||
		errors.Is(err, ErrRegistrationNotActive) ||
		errors.Is(err, ErrPaymentNotRequired) ||
		errors.Is(err, ErrCheckoutInProgress)
}
