package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// sessionSearchLimit bounds the fallback scan over recent completed sessions.
const sessionSearchLimit = 50

// Gateway is the hosted-checkout provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*models.CheckoutSession, error)
	// FindCompletedSession returns nil when no recent completed session
	// carries the registration id.
	FindCompletedSession(ctx context.Context, registrationID string) (*models.CheckoutSession, error)
}

// StripeGateway talks to Stripe Checkout. Every call goes through one
// circuit breaker.
type StripeGateway struct {
	client  *client.API
	breaker *gobreaker.CircuitBreaker[*models.CheckoutSession]
	log     *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(secretKey, nil)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, breaker: newBreaker(log), log: log}, nil
}

func newBreaker(log *logger.Logger) *gobreaker.CircuitBreaker[*models.CheckoutSession] {
	return gobreaker.NewCircuitBreaker[*models.CheckoutSession](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 4xx answers mean Stripe is up; only transport and 5xx errors trip
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var serr *stripe.Error
			return errors.As(err, &serr) && serr.HTTPStatusCode > 0 && serr.HTTPStatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("STRIPE", fmt.Sprintf("Circuit breaker %s: %s -> %s", name, from, to))
		},
	})
}

// toMinorUnits converts a price to the smallest currency unit (paise, cents).
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: []*string{stripe.String("card")},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("Ticket: " + req.EventTitle),
					Description: stripe.String("Event registration ticket for " + req.EventTitle),
				},
				UnitAmount: stripe.Int64(toMinorUnits(req.Amount)),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata: map[string]string{
			"type":           models.CheckoutTypeEventTicket,
			"userId":         req.UserID,
			"registrationId": req.RegistrationID,
			"eventId":        req.EventID,
			"ticketPrice":    fmt.Sprintf("%.2f", req.Amount),
		},
	}
	params.Context = ctx

	return g.breaker.Execute(func() (*models.CheckoutSession, error) {
		s, err := g.client.CheckoutSessions.New(params)
		if err != nil {
			g.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for registration %s: %v", req.RegistrationID, err))
			return nil, err
		}
		return toSession(s), nil
	})
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return g.breaker.Execute(func() (*models.CheckoutSession, error) {
		s, err := g.client.CheckoutSessions.Get(id, params)
		if err != nil {
			return nil, err
		}
		return toSession(s), nil
	})
}

func (g *StripeGateway) FindCompletedSession(ctx context.Context, registrationID string) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		Status: stripe.String(string(stripe.CheckoutSessionStatusComplete)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(sessionSearchLimit)
	params.Single = true

	return g.breaker.Execute(func() (*models.CheckoutSession, error) {
		it := g.client.CheckoutSessions.List(params)
		for it.Next() {
			s := it.CheckoutSession()
			if s.Metadata["type"] == models.CheckoutTypeEventTicket && s.Metadata["registrationId"] == registrationID {
				return toSession(s), nil
			}
		}
		return nil, it.Err()
	})
}

func toSession(s *stripe.CheckoutSession) *models.CheckoutSession {
	return &models.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		Status:        string(s.Status),
		AmountTotal:   s.AmountTotal,
		Metadata:      s.Metadata,
	}
}
