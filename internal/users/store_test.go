package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/clock"
	"ms-registration/internal/models"
	"ms-registration/internal/registration/db/dbtest"
	"ms-registration/internal/users"
)

func TestResolveCreatesThenReuses(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	store := users.NewStore(dbtest.New(t), clk)
	ctx := context.Background()

	first, err := store.Resolve(ctx, models.Claims{Subject: "https://clerk.example.dev#user_123", Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	assert.Equal(t, "user_123", first.ExternalID)

	// same person, bare subject and a new display name
	clk.Advance(time.Hour)
	second, err := store.Resolve(ctx, models.Claims{Subject: "user_123", Name: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Asha", second.Name)
	assert.Equal(t, "a@example.com", second.Email)

	got, err := store.GetByExternalID(ctx, "issuer|user_123")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)
}

func TestResolveDoesNotMatchOnSubstring(t *testing.T) {
	store := users.NewStore(dbtest.New(t), nil)
	ctx := context.Background()

	_, err := store.Resolve(ctx, models.Claims{Subject: "user_1234"})
	require.NoError(t, err)

	_, err = store.GetByExternalID(ctx, "user_123")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestResolveRejectsEmptySubject(t *testing.T) {
	store := users.NewStore(dbtest.New(t), nil)
	_, err := store.Resolve(context.Background(), models.Claims{Subject: "https://issuer#"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
