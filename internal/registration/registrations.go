package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-registration/internal/models"
)

func validPaymentMethod(m models.PaymentMethod) bool {
	switch m {
	case models.PaymentMethodOnline, models.PaymentMethodOffline, models.PaymentMethodFree:
		return true
	}
	return false
}

// issueRegistration inserts a confirmed registration for a seat the caller has
// already taken on the ledger.
func (s *RegistrationService) issueRegistration(ctx context.Context, event *models.Event, userID string, attendee models.AttendeeInfo, method models.PaymentMethod, now time.Time) (*models.Registration, error) {
	code, err := s.Tokens.NewToken(now)
	if err != nil {
		return nil, fmt.Errorf("issue qr code: %w", err)
	}
	method, status := models.ResolvePayment(event.TicketType, method)
	reg := &models.Registration{
		ID:            newID(),
		EventID:       event.ID,
		UserID:        userID,
		AttendeeName:  attendee.Name,
		AttendeeEmail: attendee.Email,
		QRCode:        code,
		PaymentMethod: method,
		PaymentStatus: status,
		Status:        models.RegistrationConfirmed,
		RegisteredAt:  now,
	}
	if err := s.DB.InsertRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func registrationNotification(t models.NotificationType, event *models.Event, reg *models.Registration, at time.Time) *models.Notification {
	return &models.Notification{
		Type:           t,
		EventID:        event.ID,
		EventTitle:     event.Title,
		EventStart:     event.StartDate,
		RegistrationID: reg.ID,
		AttendeeName:   reg.AttendeeName,
		AttendeeEmail:  reg.AttendeeEmail,
		QRCode:         reg.QRCode,
		PaymentStatus:  reg.PaymentStatus,
		TicketPrice:    event.TicketPrice,
		OccurredAt:     at,
	}
}

// Register takes a seat for the user. The ledger increment and the insert
// commit together.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string, req models.RegisterRequest) (*models.RegistrationResult, error) {
	if !validPaymentMethod(req.PaymentMethod) {
		return nil, models.ErrInvalidPaymentMethod
	}
	now := s.Clock.Now()

	var (
		event *models.Event
		reg   *models.Registration
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		event, err = s.DB.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}

		if _, err := s.DB.GetConfirmedRegistration(ctx, eventID, userID); err == nil {
			return models.ErrAlreadyRegistered
		} else if !errors.Is(err, models.ErrRegistrationNotFound) {
			return err
		}

		if err := s.DB.IncrementRegistrationCount(ctx, eventID, now); err != nil {
			return err
		}

		reg, err = s.issueRegistration(ctx, event, userID, req.AttendeeInfo, req.PaymentMethod, now)
		if err != nil {
			return err
		}

		// a user who got in directly leaves the queue as promoted
		entry, err := s.DB.GetActiveWaitlistEntry(ctx, eventID, userID)
		if errors.Is(err, models.ErrWaitlistEntryNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		from := entry.Status
		if err := entry.Promote(now); err != nil {
			return err
		}
		_, err = s.DB.TransitionWaitlistEntry(ctx, entry, from)
		return err
	})
	if err != nil {
		s.Logger.Warn("REGISTRATION", fmt.Sprintf("Register failed for user %s on event %s: %v", userID, eventID, err))
		return nil, err
	}

	s.Logger.LogRegistration("CREATE", reg.ID, fmt.Sprintf("event=%s user=%s payment=%s", eventID, userID, reg.PaymentStatus))
	s.notify(ctx, registrationNotification(models.NotificationRegistrationCreated, event, reg, now))
	return &models.RegistrationResult{RegistrationID: reg.ID, QRCode: reg.QRCode}, nil
}

// MarkPaid settles a pending registration. Repeated calls for the same
// registration succeed without side effects and report AlreadyPaid.
// A non-positive amount defaults to the event's ticket price.
func (s *RegistrationService) MarkPaid(ctx context.Context, registrationID, paymentReference string, amount float64) (*models.MarkPaidResult, error) {
	now := s.Clock.Now()
	var (
		result models.MarkPaidResult
		event  *models.Event
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		reg, err := s.DB.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		switch reg.PaymentStatus {
		case models.PaymentStatusPaid:
			result = models.MarkPaidResult{AlreadyPaid: true, Registration: reg}
			return nil
		case models.PaymentStatusFree:
			return models.ErrPaymentNotRequired
		}

		event, err = s.DB.GetEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if amount <= 0 {
			amount = event.TicketPrice
		}

		updated, err := s.DB.MarkRegistrationPaid(ctx, reg.ID, amount, paymentReference, now)
		if err != nil {
			return err
		}
		if reg, err = s.DB.GetRegistration(ctx, reg.ID); err != nil {
			return err
		}
		result = models.MarkPaidResult{AlreadyPaid: !updated, Registration: reg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyPaid {
		s.Logger.LogPayment("ALREADY_PAID", registrationID, "duplicate confirmation ignored")
		return &result, nil
	}
	if !result.Registration.IsConfirmed() {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Payment recorded for cancelled registration %s", registrationID))
	}
	s.Logger.LogPayment("PAID", registrationID, fmt.Sprintf("reference=%s amount=%.2f", paymentReference, result.Registration.AmountPaid))
	s.notify(ctx, registrationNotification(models.NotificationRegistrationPaid, event, result.Registration, now))
	return &result, nil
}

// MarkOfflinePaid lets the organizer record cash or bank payment at the ticket price.
func (s *RegistrationService) MarkOfflinePaid(ctx context.Context, registrationID, organizerID string) (*models.MarkPaidResult, error) {
	reg, err := s.DB.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	event, err := s.requireOrganizer(ctx, reg.EventID, organizerID)
	if err != nil {
		return nil, err
	}
	return s.MarkPaid(ctx, reg.ID, "offline:"+organizerID, event.TicketPrice)
}

// Cancel releases the user's seat and hands it to the waitlist in the same
// transaction. A failed promotion is reported in the result and never undoes
// the cancellation.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID, userID string) (*models.CancelResult, error) {
	now := s.Clock.Now()
	var (
		result models.CancelResult
		event  *models.Event
		promo  *models.Notification
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		reg, err := s.DB.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.UserID != userID {
			s.Logger.LogSecurity("CANCEL", fmt.Sprintf("user %s tried to cancel registration %s", userID, registrationID))
			return models.ErrUnauthorized
		}
		if !reg.IsConfirmed() {
			return models.ErrRegistrationNotActive
		}

		cancelled, err := s.DB.CancelRegistration(ctx, reg.ID, now)
		if err != nil {
			return err
		}
		if !cancelled {
			return models.ErrRegistrationNotActive
		}
		if err := s.DB.DecrementRegistrationCount(ctx, reg.EventID, now); err != nil {
			return err
		}
		reg.Status = models.RegistrationCancelled
		reg.CancelledAt = &now
		result.Cancelled = reg

		event, err = s.DB.GetEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}

		result.Promotion, promo = s.promoteGuarded(ctx, reg.EventID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration("CANCEL", registrationID, fmt.Sprintf("event=%s promoted=%t", event.ID, result.Promotion.Promoted))
	s.notify(ctx, registrationNotification(models.NotificationRegistrationCancelled, event, result.Cancelled, now), promo)
	return &result, nil
}

// CheckIn admits the ticket holder at eventID's door. A repeat scan is
// reported with Success=false and the original check-in time.
func (s *RegistrationService) CheckIn(ctx context.Context, eventID, qrCode, organizerID string) (*models.CheckInResult, error) {
	if s.Tokens != nil && !s.Tokens.Valid(qrCode) {
		s.Logger.LogSecurity("CHECKIN", "rejected unsigned qr code")
		return nil, models.ErrInvalidQRCode
	}
	now := s.Clock.Now()

	var result models.CheckInResult
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		reg, err := s.DB.GetRegistrationByQRCode(ctx, qrCode)
		if errors.Is(err, models.ErrRegistrationNotFound) {
			return models.ErrInvalidQRCode
		}
		if err != nil {
			return err
		}
		if _, err := s.requireOrganizer(ctx, eventID, organizerID); err != nil {
			return err
		}
		if reg.EventID != eventID {
			s.Logger.LogSecurity("CHECKIN", fmt.Sprintf("ticket %s for event %s scanned at event %s", reg.ID, reg.EventID, eventID))
			return models.ErrTicketForOtherEvent
		}
		if !reg.IsConfirmed() {
			return models.ErrRegistrationNotActive
		}
		if reg.CheckedIn {
			result = models.CheckInResult{Success: false, Message: "Already checked in", Registration: reg}
			return nil
		}

		updated, err := s.DB.CheckInRegistration(ctx, reg.ID, now)
		if err != nil {
			return err
		}
		if reg, err = s.DB.GetRegistration(ctx, reg.ID); err != nil {
			return err
		}
		if !updated {
			result = models.CheckInResult{Success: false, Message: "Already checked in", Registration: reg}
			return nil
		}
		result = models.CheckInResult{Success: true, Message: "Check-in successful", Registration: reg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration("CHECKIN", result.Registration.ID, result.Message)
	return &result, nil
}

// ---------------- READS ----------------

// GetRegistration is visible to the attendee and the event organizer.
func (s *RegistrationService) GetRegistration(ctx context.Context, registrationID, userID string) (*models.RegistrationWithEvent, error) {
	res, err := s.LookupRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID && res.Event.OrganizerID != userID {
		return nil, models.ErrUnauthorized
	}
	return res, nil
}

// LookupRegistration loads a registration with its event and no caller check.
// Payment reconciliation uses it; HTTP handlers go through GetRegistration.
func (s *RegistrationService) LookupRegistration(ctx context.Context, registrationID string) (*models.RegistrationWithEvent, error) {
	reg, err := s.DB.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	event, err := s.DB.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	return &models.RegistrationWithEvent{Registration: *reg, Event: event}, nil
}

// CheckRegistration returns the user's confirmed registration for the event,
// or nil when there is none.
func (s *RegistrationService) CheckRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	if _, err := s.DB.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	reg, err := s.DB.GetConfirmedRegistration(ctx, eventID, userID)
	if errors.Is(err, models.ErrRegistrationNotFound) {
		return nil, nil
	}
	return reg, err
}

func (s *RegistrationService) MyRegistrations(ctx context.Context, userID string) ([]models.RegistrationWithEvent, error) {
	regs, err := s.DB.ListRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.EventID)
	}
	events, err := s.DB.GetEventsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.RegistrationWithEvent, 0, len(regs))
	for _, r := range regs {
		out = append(out, models.RegistrationWithEvent{Registration: r, Event: events[r.EventID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RegisteredAt.After(out[j].RegisteredAt)
	})
	return out, nil
}

func (s *RegistrationService) EventRegistrations(ctx context.Context, eventID, organizerID string) ([]models.Registration, error) {
	if _, err := s.requireOrganizer(ctx, eventID, organizerID); err != nil {
		return nil, err
	}
	return s.DB.ListRegistrationsByEvent(ctx, eventID)
}
