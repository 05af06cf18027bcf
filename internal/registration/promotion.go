package registration

import (
	"context"
	"fmt"

	"ms-registration/internal/models"
)

// promoteGuarded runs the promotion engine under a savepoint. Any failure is
// rolled back to the savepoint, logged, and reported in the outcome.
func (s *RegistrationService) promoteGuarded(ctx context.Context, eventID string) (*models.PromotionOutcome, *models.Notification) {
	var (
		outcome *models.PromotionOutcome
		note    *models.Notification
	)
	err := s.DB.Savepoint(ctx, "waitlist_promotion", func(ctx context.Context) error {
		var err error
		outcome, note, err = s.promote(ctx, eventID)
		return err
	})
	if err != nil {
		s.Logger.Error("WAITLIST", fmt.Sprintf("Promotion failed for event %s: %v", eventID, err))
		return &models.PromotionOutcome{
			Promoted: false,
			Reason:   models.PromotionReasonFailed,
			Error:    err.Error(),
		}, nil
	}
	return outcome, note
}

// promote hands one open seat to the front of the queue. Free events get a
// confirmed registration immediately; paid events get an offer the user must
// claim. Must run inside a transaction.
func (s *RegistrationService) promote(ctx context.Context, eventID string) (*models.PromotionOutcome, *models.Notification, error) {
	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if event.IsFull() {
		return &models.PromotionOutcome{Promoted: false, Reason: models.PromotionReasonEventFull}, nil, nil
	}

	attempts := s.PromotionAttempts
	if attempts <= 0 {
		attempts = defaultPromotionAttempts
	}
	now := s.Clock.Now()

	// a concurrent promoter may claim the head between select and update;
	// the conditional transition detects that and we look again
	for i := 0; i < attempts; i++ {
		entry, err := s.DB.NextWaiting(ctx, eventID)
		if err != nil {
			return nil, nil, err
		}
		if entry == nil {
			return &models.PromotionOutcome{Promoted: false, Reason: models.PromotionReasonQueueEmpty}, nil, nil
		}

		if event.IsFree() {
			if err := entry.Promote(now); err != nil {
				return nil, nil, err
			}
		} else {
			if err := entry.Offer(now); err != nil {
				return nil, nil, err
			}
		}
		claimed, err := s.DB.TransitionWaitlistEntry(ctx, entry, models.WaitlistWaiting)
		if err != nil {
			return nil, nil, err
		}
		if !claimed {
			continue
		}

		outcome := &models.PromotionOutcome{
			Promoted:        true,
			WaitlistEntryID: entry.ID,
			UserID:          entry.UserID,
			AttendeeName:    entry.AttendeeName,
			AttendeeEmail:   entry.AttendeeEmail,
		}
		note := &models.Notification{
			EventID:         event.ID,
			EventTitle:      event.Title,
			EventStart:      event.StartDate,
			WaitlistEntryID: entry.ID,
			AttendeeName:    entry.AttendeeName,
			AttendeeEmail:   entry.AttendeeEmail,
			OccurredAt:      now,
		}

		if !event.IsFree() {
			outcome.Kind = models.PromotionPaid
			outcome.TicketPrice = event.TicketPrice
			note.Type = models.NotificationWaitlistOffered
			note.TicketPrice = event.TicketPrice
			s.Logger.LogWaitlist("OFFER", entry.ID, fmt.Sprintf("event=%s user=%s price=%.2f", event.ID, entry.UserID, event.TicketPrice))
			return outcome, note, nil
		}

		if err := s.DB.IncrementRegistrationCount(ctx, event.ID, now); err != nil {
			return nil, nil, err
		}
		attendee := models.AttendeeInfo{Name: entry.AttendeeName, Email: entry.AttendeeEmail}
		reg, err := s.issueRegistration(ctx, event, entry.UserID, attendee, models.PaymentMethodFree, now)
		if err != nil {
			return nil, nil, err
		}

		outcome.Kind = models.PromotionFree
		outcome.RegistrationID = reg.ID
		outcome.QRCode = reg.QRCode
		note.Type = models.NotificationWaitlistPromoted
		note.RegistrationID = reg.ID
		note.QRCode = reg.QRCode
		note.PaymentStatus = reg.PaymentStatus
		s.Logger.LogWaitlist("PROMOTE", entry.ID, fmt.Sprintf("event=%s user=%s registration=%s", event.ID, entry.UserID, reg.ID))
		return outcome, note, nil
	}

	return nil, nil, models.ErrPromotionContention
}

// PromoteNext lets an organizer fill an open seat from the queue outside of a
// cancellation, e.g. after raising capacity or when an earlier promotion failed.
func (s *RegistrationService) PromoteNext(ctx context.Context, eventID, organizerID string) (*models.PromotionOutcome, error) {
	var (
		outcome *models.PromotionOutcome
		note    *models.Notification
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.requireOrganizer(ctx, eventID, organizerID); err != nil {
			return err
		}
		var err error
		outcome, note, err = s.promote(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, note)
	return outcome, nil
}
