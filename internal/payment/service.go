package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

// Registrations is the slice of the registration service payments settle
// against. MarkPaid is idempotent per registration id.
type Registrations interface {
	GetRegistration(ctx context.Context, registrationID, userID string) (*models.RegistrationWithEvent, error)
	LookupRegistration(ctx context.Context, registrationID string) (*models.RegistrationWithEvent, error)
	MarkPaid(ctx context.Context, registrationID, paymentReference string, amount float64) (*models.MarkPaidResult, error)
}

// Locker guards checkout creation and deduplicates webhook deliveries.
type Locker interface {
	LockCheckout(ctx context.Context, registrationID, owner string) (bool, error)
	UnlockCheckout(ctx context.Context, registrationID, owner string) error
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

type PaymentService struct {
	Registrations Registrations
	Gateway       Gateway
	Locks         Locker
	Config        config.StripeConfig
	Logger        *logger.Logger
}

func NewPaymentService(regs Registrations, gateway Gateway, locks Locker, cfg config.StripeConfig, log *logger.Logger) *PaymentService {
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentService{Registrations: regs, Gateway: gateway, Locks: locks, Config: cfg, Logger: log}
}

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// CreateTicketCheckout opens a Stripe checkout for the caller's pending
// registration. One checkout per registration may be in flight at a time.
func (s *PaymentService) CreateTicketCheckout(ctx context.Context, registrationID, userID string) (*models.CheckoutSession, error) {
	if s.Gateway == nil {
		return nil, models.ErrPaymentProviderNotEnabled
	}
	res, err := s.Registrations.GetRegistration(ctx, registrationID, userID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		s.Logger.LogSecurity("CHECKOUT", fmt.Sprintf("user %s tried to pay for registration %s", userID, registrationID))
		return nil, models.ErrUnauthorized
	}
	if !res.IsConfirmed() {
		return nil, models.ErrRegistrationNotActive
	}
	if res.PaymentStatus != models.PaymentStatusPending || res.Event.TicketPrice <= 0 {
		return nil, models.ErrPaymentNotRequired
	}

	if s.Locks != nil {
		owner := uuid.NewString()
		locked, err := s.Locks.LockCheckout(ctx, registrationID, owner)
		if err != nil {
			return nil, fmt.Errorf("checkout lock: %w", err)
		}
		if !locked {
			return nil, models.ErrCheckoutInProgress
		}
		defer func() {
			if err := s.Locks.UnlockCheckout(context.Background(), registrationID, owner); err != nil {
				s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release checkout lock for %s: %v", registrationID, err))
			}
		}()
	}

	successURL := fmt.Sprintf("%s/my-tickets?session_id={CHECKOUT_SESSION_ID}&registration_id=%s",
		s.Config.FrontendURL, url.QueryEscape(registrationID))
	session, err := s.Gateway.CreateCheckoutSession(ctx, models.CheckoutRequest{
		RegistrationID: registrationID,
		EventID:        res.EventID,
		UserID:         userID,
		EventTitle:     res.Event.Title,
		Amount:         res.Event.TicketPrice,
		Currency:       s.Config.Currency,
		SuccessURL:     successURL,
		CancelURL:      s.Config.FrontendURL + "/my-tickets?payment=cancelled",
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	s.Logger.LogPayment("CHECKOUT", registrationID, fmt.Sprintf("session %s for %.2f %s", session.ID, res.Event.TicketPrice, s.Config.Currency))
	return session, nil
}

// VerifyPayment is the client-side poll after the Stripe redirect. It finds
// the session (by id, else by scanning recent completed sessions) and settles
// the registration through the same MarkPaid the webhook uses.
func (s *PaymentService) VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (*models.VerifyPaymentResult, error) {
	res, err := s.Registrations.LookupRegistration(ctx, req.RegistrationID)
	if err != nil {
		return nil, err
	}
	result := &models.VerifyPaymentResult{RegistrationID: res.ID}
	if res.PaymentStatus == models.PaymentStatusPaid {
		result.Status = models.VerifyStatusAlreadyPaid
		result.AlreadyPaid = true
		return result, nil
	}
	if s.Gateway == nil {
		return nil, models.ErrPaymentProviderNotEnabled
	}

	session, err := s.findSession(ctx, req.SessionID, res.ID)
	if err != nil {
		return nil, err
	}
	if !session.IsPaid() {
		result.Status = models.VerifyStatusPaymentIncomplete
		return result, nil
	}

	paid, err := s.Registrations.MarkPaid(ctx, res.ID, session.ID, ticketPrice(session.Metadata))
	if err != nil {
		return nil, err
	}
	result.Status = models.VerifyStatusVerified
	result.AlreadyPaid = paid.AlreadyPaid
	return result, nil
}

// findSession never returns a session belonging to another registration.
func (s *PaymentService) findSession(ctx context.Context, sessionID, registrationID string) (*models.CheckoutSession, error) {
	if sessionID != "" {
		session, err := s.Gateway.GetCheckoutSession(ctx, sessionID)
		switch {
		case err != nil:
			s.Logger.Warn("PAYMENT", fmt.Sprintf("Session %s lookup failed, searching recent sessions: %v", sessionID, err))
		case session.Metadata["registrationId"] != registrationID:
			s.Logger.LogSecurity("VERIFY", fmt.Sprintf("session %s does not belong to registration %s", sessionID, registrationID))
		default:
			return session, nil
		}
	}
	return s.Gateway.FindCompletedSession(ctx, registrationID)
}

func ticketPrice(metadata map[string]string) float64 {
	v, err := strconv.ParseFloat(metadata["ticketPrice"], 64)
	if err != nil {
		return 0 // MarkPaid falls back to the event's price
	}
	return v
}

// HandleWebhook verifies and applies a Stripe event. Ticket checkouts are
// settled through MarkPaid; every other event type is acknowledged and
// ignored. Redelivered event ids are skipped.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.Config.WebhookSecret == "" {
		s.Logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.Config.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.Logger.LogSecurity("WEBHOOK", fmt.Sprintf("Invalid webhook signature: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event %s: %s", event.ID, event.Type))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
		return nil
	}

	if s.Locks != nil {
		first, err := s.Locks.MarkEventProcessed(ctx, event.ID)
		if err != nil {
			// redis down: settle anyway, MarkPaid is idempotent
			s.Logger.Warn("REDIS", fmt.Sprintf("Event dedupe unavailable for %s: %v", event.ID, err))
		} else if !first {
			s.Logger.Info("WEBHOOK", fmt.Sprintf("Event %s already processed", event.ID))
			return nil
		}
	}

	if err := s.settleSession(ctx, event); err != nil {
		if s.Locks != nil {
			if ferr := s.Locks.ForgetEvent(ctx, event.ID); ferr != nil {
				s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release event %s: %v", event.ID, ferr))
			}
		}
		return err
	}
	return nil
}

func (s *PaymentService) settleSession(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}

	if session.Metadata["type"] != models.CheckoutTypeEventTicket {
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Ignoring checkout session %s of type %q", session.ID, session.Metadata["type"]))
		return nil
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		// async methods complete unpaid and settle on async_payment_succeeded
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Checkout session %s completed unpaid", session.ID))
		return nil
	}

	registrationID := session.Metadata["registrationId"]
	if registrationID == "" {
		return &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: fmt.Sprintf("Checkout session %s has no registrationId in metadata", session.ID),
		}
	}

	res, err := s.Registrations.MarkPaid(ctx, registrationID, session.ID, ticketPrice(session.Metadata))
	if err != nil {
		status := http.StatusInternalServerError
		if models.IsNotFound(err) || errors.Is(err, models.ErrPaymentNotRequired) {
			// retrying will not help
			status = http.StatusOK
		}
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to mark registration %s paid: %v", registrationID, err))
		return &WebhookError{
			Category:      "processing",
			StatusCode:    status,
			PublicError:   "Failed to process payment",
			InternalError: fmt.Sprintf("Failed to mark registration %s paid: %v", registrationID, err),
			OriginalErr:   err,
		}
	}

	s.Logger.LogPayment("WEBHOOK", registrationID, fmt.Sprintf("settled by session %s (already paid: %t)", session.ID, res.AlreadyPaid))
	return nil
}
