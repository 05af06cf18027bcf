package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.idb(ctx).NewInsert().Model(event).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.idb(ctx).NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &event, nil
}

func (d *DB) GetEventsByIDs(ctx context.Context, ids []string) (map[string]*models.Event, error) {
	out := make(map[string]*models.Event, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var events []models.Event
	err := d.idb(ctx).NewSelect().
		Model(&events).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	for i := range events {
		out[events[i].ID] = &events[i]
	}
	return out, nil
}

// IncrementRegistrationCount takes one seat. The guard on capacity makes two
// concurrent takers of the last seat serialize on the row: one wins, the other
// sees zero rows affected.
func (d *DB) IncrementRegistrationCount(ctx context.Context, eventID string, at time.Time) error {
	res, err := d.idb(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("registration_count = registration_count + 1").
		Set("updated_at = ?", at).
		Where("id = ?", eventID).
		Where("registration_count < capacity").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("increment registration count: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := d.GetEvent(ctx, eventID); err != nil {
			return err
		}
		return models.ErrCapacityExceeded
	}
	return nil
}

// DecrementRegistrationCount releases one seat, never going below zero.
func (d *DB) DecrementRegistrationCount(ctx context.Context, eventID string, at time.Time) error {
	_, err := d.idb(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("registration_count = registration_count - 1").
		Set("updated_at = ?", at).
		Where("id = ?", eventID).
		Where("registration_count > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("decrement registration count: %w", err)
	}
	return nil
}
