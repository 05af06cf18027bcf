package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-registration/internal/clock"
	"ms-registration/internal/models"
)

// Store maps identity-provider subjects to internal user records. Subjects are
// normalized before every read and write, so lookups are a single indexed
// equality match on external_id.
type Store struct {
	Bun   *bun.DB
	Clock clock.Clock
}

func NewStore(db *bun.DB, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Store{Bun: db, Clock: clk}
}

func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	err := s.Bun.NewSelect().
		Model(&user).
		Where("external_id = ?", models.NormalizeExternalID(externalID)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Resolve returns the user for the token claims, creating it on first sight
// and refreshing email and name when they changed.
func (s *Store) Resolve(ctx context.Context, claims models.Claims) (*models.User, error) {
	externalID := models.NormalizeExternalID(claims.Subject)
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty subject", models.ErrUnauthorized)
	}

	user, err := s.GetByExternalID(ctx, externalID)
	if err == nil {
		return s.refresh(ctx, user, claims)
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return nil, err
	}

	now := s.Clock.Now()
	user = &models.User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Email:      claims.Email,
		Name:       claims.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.Bun.NewInsert().Model(user).Exec(ctx); err != nil {
		// lost a first-login race; the other request created the row
		if isUniqueViolation(err) {
			return s.GetByExternalID(ctx, externalID)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Store) refresh(ctx context.Context, user *models.User, claims models.Claims) (*models.User, error) {
	changed := false
	if claims.Email != "" && claims.Email != user.Email {
		user.Email = claims.Email
		changed = true
	}
	if claims.Name != "" && claims.Name != user.Name {
		user.Name = claims.Name
		changed = true
	}
	if !changed {
		return user, nil
	}
	user.UpdatedAt = s.Clock.Now()
	_, err := s.Bun.NewUpdate().
		Model(user).
		Column("email", "name", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
