package registration

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-registration/internal/clock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

const defaultPromotionAttempts = 5

// Store is the transactional persistence the registration flows run against.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error

	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetEventsByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error)
	IncrementRegistrationCount(ctx context.Context, eventID string, at time.Time) error
	DecrementRegistrationCount(ctx context.Context, eventID string, at time.Time) error

	InsertRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	GetRegistrationByQRCode(ctx context.Context, qrCode string) (*models.Registration, error)
	GetConfirmedRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error)
	ListRegistrationsByUser(ctx context.Context, userID string) ([]models.Registration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
	MarkRegistrationPaid(ctx context.Context, id string, amount float64, reference string, at time.Time) (bool, error)
	CancelRegistration(ctx context.Context, id string, at time.Time) (bool, error)
	CheckInRegistration(ctx context.Context, id string, at time.Time) (bool, error)

	InsertWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error
	GetActiveWaitlistEntry(ctx context.Context, eventID, userID string) (*models.WaitlistEntry, error)
	NextWaiting(ctx context.Context, eventID string) (*models.WaitlistEntry, error)
	CountWaiting(ctx context.Context, eventID string) (int, error)
	ListWaiting(ctx context.Context, eventID string) ([]models.WaitlistEntry, error)
	ListWaitlistByEvent(ctx context.Context, eventID string) ([]models.WaitlistEntry, error)
	ListActiveWaitlistByUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error)
	TransitionWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry, from models.WaitlistStatus) (bool, error)
}

// Notifier dispatches attendee notifications. Implementations log their own
// failures; nothing is returned to the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// TokenIssuer produces the opaque check-in codes printed on tickets.
type TokenIssuer interface {
	NewToken(now time.Time) (string, error)
	Valid(token string) bool
}

type RegistrationService struct {
	DB                Store
	Notifier          Notifier
	Tokens            TokenIssuer
	Clock             clock.Clock
	Logger            *logger.Logger
	PromotionAttempts int
}

func NewRegistrationService(db Store, notifier Notifier, tokens TokenIssuer, clk clock.Clock, log *logger.Logger) *RegistrationService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RegistrationService{
		DB:                db,
		Notifier:          notifier,
		Tokens:            tokens,
		Clock:             clk,
		Logger:            log,
		PromotionAttempts: defaultPromotionAttempts,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// notify sends notifications collected during a committed transaction.
func (s *RegistrationService) notify(ctx context.Context, notes ...*models.Notification) {
	if s.Notifier == nil {
		return
	}
	for _, n := range notes {
		if n != nil {
			s.Notifier.Notify(ctx, *n)
		}
	}
}

func (s *RegistrationService) requireOrganizer(ctx context.Context, eventID, organizerID string) (*models.Event, error) {
	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		s.Logger.LogSecurity("ORGANIZER_CHECK", fmt.Sprintf("user %s is not organizer of event %s", organizerID, eventID))
		return nil, models.ErrUnauthorized
	}
	return event, nil
}

// ---------------- EVENTS ----------------

var slugDisallowed = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	return strings.Trim(slugDisallowed.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

func (s *RegistrationService) CreateEvent(ctx context.Context, organizer *models.User, req models.CreateEventRequest) (*models.Event, error) {
	now := s.Clock.Now()
	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Title)
	}
	price := req.TicketPrice
	if req.TicketType == models.TicketTypeFree {
		price = 0
	}

	event := &models.Event{
		ID:            newID(),
		Title:         req.Title,
		Slug:          slug,
		OrganizerID:   organizer.ID,
		OrganizerName: organizer.Name,
		StartDate:     req.StartDate.UTC(),
		EndDate:       req.EndDate.UTC(),
		Capacity:      req.Capacity,
		TicketType:    req.TicketType,
		TicketPrice:   price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %s created by %s with capacity %d", event.ID, organizer.ID, event.Capacity))
	return event, nil
}

func (s *RegistrationService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return s.DB.GetEvent(ctx, id)
}
