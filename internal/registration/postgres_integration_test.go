//go:build integration

package registration_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"ms-registration/internal/clock"
	"ms-registration/internal/config"
	"ms-registration/internal/database"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/tickets/qr"
)

// startPostgres runs a throwaway Postgres and applies the embedded migrations.
func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "registration",
				"POSTGRES_PASSWORD": "registration",
				"POSTGRES_DB":       "registration",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	bunDB, err := database.ConnectPostgres(ctx, config.DatabaseConfig{
		Host:         host,
		Port:         port.Port(),
		Username:     "registration",
		Password:     "registration",
		Database:     "registration",
		SSLMode:      "disable",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
		MaxLifetime:  time.Minute,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), logger.Nop())
	require.NoError(t, runner.RunMigrations())
	return bunDB
}

func TestPostgresLastSeatRace(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()
	svc := registration.NewRegistrationService(db.New(bunDB), nil, qr.NewGenerator("secret", 0), clock.NewSystem(), logger.Nop())

	start := time.Now().Add(24 * time.Hour).UTC()
	event, err := svc.CreateEvent(ctx, &models.User{ID: "organizer"}, models.CreateEventRequest{
		Title: "Last Seat", StartDate: start, EndDate: start.Add(time.Hour),
		Capacity: 1, TicketType: models.TicketTypeFree,
	})
	require.NoError(t, err)

	const racers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		full      int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", n)
			_, err := svc.Register(ctx, event.ID, user, models.RegisterRequest{
				AttendeeInfo:  models.AttendeeInfo{Name: user, Email: user + "@example.com"},
				PaymentMethod: models.PaymentMethodFree,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, models.ErrCapacityExceeded):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, full)

	got, err := svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RegistrationCount)
}

func TestPostgresCancelPromotesAndKeepsLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()
	store := db.New(bunDB)
	svc := registration.NewRegistrationService(store, nil, qr.NewGenerator("secret", 0), clock.NewSystem(), logger.Nop())

	start := time.Now().Add(24 * time.Hour).UTC()
	event, err := svc.CreateEvent(ctx, &models.User{ID: "organizer"}, models.CreateEventRequest{
		Title: "Promotion", StartDate: start, EndDate: start.Add(time.Hour),
		Capacity: 1, TicketType: models.TicketTypeFree,
	})
	require.NoError(t, err)

	attendee := func(u string) models.AttendeeInfo {
		return models.AttendeeInfo{Name: u, Email: u + "@example.com"}
	}
	reg, err := svc.Register(ctx, event.ID, "alice", models.RegisterRequest{AttendeeInfo: attendee("alice"), PaymentMethod: models.PaymentMethodFree})
	require.NoError(t, err)
	_, err = svc.JoinWaitlist(ctx, event.ID, "bob", attendee("bob"))
	require.NoError(t, err)

	res, err := svc.Cancel(ctx, reg.RegistrationID, "alice")
	require.NoError(t, err)
	require.NotNil(t, res.Promotion)
	assert.True(t, res.Promotion.Promoted)
	assert.Equal(t, "bob", res.Promotion.UserID)

	count, err := store.CountConfirmed(ctx, event.ID)
	require.NoError(t, err)
	got, err := svc.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, count, got.RegistrationCount)
	assert.Equal(t, 1, count)
}
