package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

func (d *DB) InsertWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	_, err := d.idb(ctx).NewInsert().Model(entry).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyOnWaitlist
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (d *DB) GetWaitlistEntry(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.idb(ctx).NewSelect().
		Model(&entry).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWaitlistEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return &entry, nil
}

// GetActiveWaitlistEntry returns the user's waiting or offered entry.
func (d *DB) GetActiveWaitlistEntry(ctx context.Context, eventID, userID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.idb(ctx).NewSelect().
		Model(&entry).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Where("status IN (?)", bun.In(models.ActiveWaitlistStatuses)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWaitlistEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active waitlist entry: %w", err)
	}
	return &entry, nil
}

// NextWaiting returns the earliest waiting entry, or nil when the queue is empty.
func (d *DB) NextWaiting(ctx context.Context, eventID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.idb(ctx).NewSelect().
		Model(&entry).
		Where("event_id = ?", eventID).
		Where("status = ?", models.WaitlistWaiting).
		Order("joined_at ASC", "id ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next waiting entry: %w", err)
	}
	return &entry, nil
}

func (d *DB) CountWaiting(ctx context.Context, eventID string) (int, error) {
	n, err := d.idb(ctx).NewSelect().
		Model((*models.WaitlistEntry)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.WaitlistWaiting).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count waiting: %w", err)
	}
	return n, nil
}

func (d *DB) ListWaiting(ctx context.Context, eventID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.idb(ctx).NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Where("status = ?", models.WaitlistWaiting).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waiting: %w", err)
	}
	return entries, nil
}

func (d *DB) ListWaitlistByEvent(ctx context.Context, eventID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.idb(ctx).NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

func (d *DB) ListActiveWaitlistByUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.idb(ctx).NewSelect().
		Model(&entries).
		Where("user_id = ?", userID).
		Where("status IN (?)", bun.In(models.ActiveWaitlistStatuses)).
		Order("joined_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waitlist for user: %w", err)
	}
	return entries, nil
}

// TransitionWaitlistEntry persists an in-memory transition only if the row is
// still in the from state. False means another writer moved it first.
func (d *DB) TransitionWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry, from models.WaitlistStatus) (bool, error) {
	res, err := d.idb(ctx).NewUpdate().
		Model(entry).
		Column("status", "offered_at", "promoted_at", "closed_at").
		Where("id = ?", entry.ID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update waitlist entry: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
