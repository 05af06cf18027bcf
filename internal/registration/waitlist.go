package registration

import (
	"context"
	"errors"
	"fmt"

	"ms-registration/internal/models"
)

// JoinWaitlist queues the user for a full event. The returned position is a
// point-in-time estimate: waiting entries ahead plus one.
func (s *RegistrationService) JoinWaitlist(ctx context.Context, eventID, userID string, attendee models.AttendeeInfo) (*models.WaitlistJoinResult, error) {
	now := s.Clock.Now()
	var (
		event  *models.Event
		entry  *models.WaitlistEntry
		result models.WaitlistJoinResult
	)
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		event, err = s.DB.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !event.IsFull() {
			return models.ErrEventNotFull
		}

		if _, err := s.DB.GetConfirmedRegistration(ctx, eventID, userID); err == nil {
			return models.ErrAlreadyRegistered
		} else if !errors.Is(err, models.ErrRegistrationNotFound) {
			return err
		}
		if _, err := s.DB.GetActiveWaitlistEntry(ctx, eventID, userID); err == nil {
			return models.ErrAlreadyOnWaitlist
		} else if !errors.Is(err, models.ErrWaitlistEntryNotFound) {
			return err
		}

		waiting, err := s.DB.CountWaiting(ctx, eventID)
		if err != nil {
			return err
		}

		entry = &models.WaitlistEntry{
			ID:            newID(),
			EventID:       eventID,
			UserID:        userID,
			AttendeeName:  attendee.Name,
			AttendeeEmail: attendee.Email,
			Status:        models.WaitlistWaiting,
			JoinedAt:      now,
		}
		if err := s.DB.InsertWaitlistEntry(ctx, entry); err != nil {
			return err
		}
		result = models.WaitlistJoinResult{EntryID: entry.ID, Position: waiting + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogWaitlist("JOIN", entry.ID, fmt.Sprintf("event=%s user=%s position=%d", eventID, userID, result.Position))
	s.notify(ctx, &models.Notification{
		Type:            models.NotificationWaitlistJoined,
		EventID:         event.ID,
		EventTitle:      event.Title,
		EventStart:      event.StartDate,
		WaitlistEntryID: entry.ID,
		AttendeeName:    entry.AttendeeName,
		AttendeeEmail:   entry.AttendeeEmail,
		Position:        result.Position,
		OccurredAt:      now,
	})
	return &result, nil
}

// WaitlistPosition recomputes the user's rank from the current queue. It
// returns nil when the user has no active entry.
func (s *RegistrationService) WaitlistPosition(ctx context.Context, eventID, userID string) (*models.WaitlistPosition, error) {
	if _, err := s.DB.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	entry, err := s.DB.GetActiveWaitlistEntry(ctx, eventID, userID)
	if errors.Is(err, models.ErrWaitlistEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	waiting, err := s.DB.ListWaiting(ctx, eventID)
	if err != nil {
		return nil, err
	}

	pos := &models.WaitlistPosition{Entry: entry, TotalWaiting: len(waiting)}
	if entry.Status == models.WaitlistOffered {
		pos.IsOffered = true
		return pos, nil
	}
	pos.Position = RankOf(waiting, entry.ID)
	return pos, nil
}

// LeaveWaitlist cancels the user's waiting or offered entry. No seat was held,
// so nothing is promoted.
func (s *RegistrationService) LeaveWaitlist(ctx context.Context, eventID, userID string) (*models.WaitlistEntry, error) {
	now := s.Clock.Now()
	var entry *models.WaitlistEntry
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		entry, err = s.DB.GetActiveWaitlistEntry(ctx, eventID, userID)
		if err != nil {
			return err
		}
		from := entry.Status
		if err := entry.Cancel(now); err != nil {
			return err
		}
		moved, err := s.DB.TransitionWaitlistEntry(ctx, entry, from)
		if err != nil {
			return err
		}
		if !moved {
			return models.ErrWaitlistEntryNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.LogWaitlist("LEAVE", entry.ID, fmt.Sprintf("event=%s user=%s", eventID, userID))
	return entry, nil
}

// ClaimOffer turns an offered entry into a registration. The seat is taken on
// the ledger now; payment follows through the usual flow.
func (s *RegistrationService) ClaimOffer(ctx context.Context, eventID, userID string, req models.ClaimOfferRequest) (*models.RegistrationResult, error) {
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

		entry, err := s.DB.GetActiveWaitlistEntry(ctx, eventID, userID)
		if errors.Is(err, models.ErrWaitlistEntryNotFound) {
			return models.ErrNoActiveOffer
		}
		if err != nil {
			return err
		}
		if entry.Status != models.WaitlistOffered {
			return models.ErrNoActiveOffer
		}

		if _, err := s.DB.GetConfirmedRegistration(ctx, eventID, userID); err == nil {
			return models.ErrAlreadyRegistered
		} else if !errors.Is(err, models.ErrRegistrationNotFound) {
			return err
		}

		if err := s.DB.IncrementRegistrationCount(ctx, eventID, now); err != nil {
			return err
		}
		attendee := models.AttendeeInfo{Name: entry.AttendeeName, Email: entry.AttendeeEmail}
		reg, err = s.issueRegistration(ctx, event, userID, attendee, req.PaymentMethod, now)
		if err != nil {
			return err
		}

		if err := entry.Promote(now); err != nil {
			return err
		}
		moved, err := s.DB.TransitionWaitlistEntry(ctx, entry, models.WaitlistOffered)
		if err != nil {
			return err
		}
		if !moved {
			return models.ErrNoActiveOffer
		}
		return nil
	})
	if err != nil {
		s.Logger.Warn("WAITLIST", fmt.Sprintf("Claim failed for user %s on event %s: %v", userID, eventID, err))
		return nil, err
	}

	s.Logger.LogWaitlist("CLAIM", reg.ID, fmt.Sprintf("event=%s user=%s payment=%s", eventID, userID, reg.PaymentStatus))
	s.notify(ctx, registrationNotification(models.NotificationRegistrationCreated, event, reg, now))
	return &models.RegistrationResult{RegistrationID: reg.ID, QRCode: reg.QRCode}, nil
}

// ListWaitlistForOrganizer returns every entry: waiting first in queue order,
// then the rest.
func (s *RegistrationService) ListWaitlistForOrganizer(ctx context.Context, eventID, organizerID string) ([]models.WaitlistEntry, error) {
	if _, err := s.requireOrganizer(ctx, eventID, organizerID); err != nil {
		return nil, err
	}
	entries, err := s.DB.ListWaitlistByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return SortForOrganizer(entries), nil
}

func (s *RegistrationService) WaitlistCount(ctx context.Context, eventID string) (int, error) {
	if _, err := s.DB.GetEvent(ctx, eventID); err != nil {
		return 0, err
	}
	return s.DB.CountWaiting(ctx, eventID)
}

func (s *RegistrationService) MyWaitlistEntries(ctx context.Context, userID string) ([]models.WaitlistEntryWithEvent, error) {
	entries, err := s.DB.ListActiveWaitlistByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EventID)
	}
	events, err := s.DB.GetEventsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.WaitlistEntryWithEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.WaitlistEntryWithEvent{WaitlistEntry: e, Event: events[e.EventID]})
	}
	return out, nil
}
