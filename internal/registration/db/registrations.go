package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/models"
)

func (d *DB) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := d.idb(ctx).NewInsert().Model(reg).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedColumn(err, "qr_code") {
				return models.ErrDuplicateQRCode
			}
			return models.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (d *DB) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	return d.getRegistrationWhere(ctx, "id = ?", id)
}

// GetRegistrationByQRCode looks a ticket up through the unique qr_code index.
func (d *DB) GetRegistrationByQRCode(ctx context.Context, qrCode string) (*models.Registration, error) {
	return d.getRegistrationWhere(ctx, "qr_code = ?", qrCode)
}

func (d *DB) getRegistrationWhere(ctx context.Context, where string, arg interface{}) (*models.Registration, error) {
	var reg models.Registration
	err := d.idb(ctx).NewSelect().
		Model(&reg).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

// GetConfirmedRegistration returns the user's live registration for an event.
func (d *DB) GetConfirmedRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.idb(ctx).NewSelect().
		Model(&reg).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Where("status = ?", models.RegistrationConfirmed).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get confirmed registration: %w", err)
	}
	return &reg, nil
}

func (d *DB) ListRegistrationsByUser(ctx context.Context, userID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.idb(ctx).NewSelect().
		Model(&regs).
		Where("user_id = ?", userID).
		Order("registered_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registrations for user: %w", err)
	}
	return regs, nil
}

func (d *DB) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.idb(ctx).NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Order("registered_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registrations for event: %w", err)
	}
	return regs, nil
}

func (d *DB) CountConfirmed(ctx context.Context, eventID string) (int, error) {
	n, err := d.idb(ctx).NewSelect().
		Model((*models.Registration)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.RegistrationConfirmed).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count confirmed registrations: %w", err)
	}
	return n, nil
}

// MarkRegistrationPaid settles a pending balance. It reports false when the
// registration was not pending, which callers treat as already settled.
func (d *DB) MarkRegistrationPaid(ctx context.Context, id string, amount float64, reference string, at time.Time) (bool, error) {
	res, err := d.idb(ctx).NewUpdate().
		Model((*models.Registration)(nil)).
		Set("payment_status = ?", models.PaymentStatusPaid).
		Set("amount_paid = ?", amount).
		Set("payment_reference = ?", reference).
		Set("paid_at = ?", at).
		Where("id = ?", id).
		Where("payment_status = ?", models.PaymentStatusPending).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark registration paid: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (d *DB) CancelRegistration(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.idb(ctx).NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", models.RegistrationCancelled).
		Set("cancelled_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.RegistrationConfirmed).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("cancel registration: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

// CheckInRegistration flips checked_in once; a second call reports false and
// leaves checked_in_at untouched.
func (d *DB) CheckInRegistration(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.idb(ctx).NewUpdate().
		Model((*models.Registration)(nil)).
		Set("checked_in = ?", true).
		Set("checked_in_at = ?", at).
		Where("id = ?", id).
		Where("checked_in = ?", false).
		Where("status = ?", models.RegistrationConfirmed).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("check in registration: %w", err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
