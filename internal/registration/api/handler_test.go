package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/auth"
	"ms-registration/internal/clock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/api"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/registration/db/dbtest"
	"ms-registration/internal/tickets/qr"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type MockCheckout struct {
	mock.Mock
}

func (m *MockCheckout) CreateTicketCheckout(ctx context.Context, registrationID, userID string) (*models.CheckoutSession, error) {
	args := m.Called(ctx, registrationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutSession), args.Error(1)
}

// testAuth trusts X-Test-User; the real middleware is covered in package auth.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Test-User")
		if id == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), &models.User{ID: id, Name: id})))
	})
}

type server struct {
	t       *testing.T
	router  chi.Router
	handler *api.Handler
}

func newServer(t *testing.T) *server {
	store := db.New(dbtest.New(t))
	gen := qr.NewGenerator("secret", 64)
	svc := registration.NewRegistrationService(store, nil, gen, clock.NewFixed(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)), logger.Nop())
	h := api.NewHandler(svc, nil, gen, logger.Nop())

	r := chi.NewRouter()
	h.Routes(r, testAuth)
	return &server{t: t, router: r, handler: h}
}

func (s *server) do(method, path, user string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *server) createEvent(capacity int, ticketType models.TicketType, price float64) models.Event {
	s.t.Helper()
	start := time.Date(2026, 12, 1, 18, 0, 0, 0, time.UTC)
	rec, env := s.do(http.MethodPost, "/api/events", "organizer", map[string]interface{}{
		"title":        "Go Night",
		"start_date":   start,
		"end_date":     start.Add(3 * time.Hour),
		"capacity":     capacity,
		"ticket_type":  ticketType,
		"ticket_price": price,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var event models.Event
	require.NoError(s.t, json.Unmarshal(env.Data, &event))
	return event
}

func registerBody(user string) map[string]string {
	return map[string]string{
		"attendee_name":  "Name " + user,
		"attendee_email": user + "@example.com",
		"payment_method": "free",
	}
}

func TestRegisterAndCancelFlow(t *testing.T) {
	s := newServer(t)
	event := s.createEvent(1, models.TicketTypeFree, 0)
	assert.Equal(t, "go-night", event.Slug)

	rec, env := s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "alice", registerBody("alice"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg models.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.NotEmpty(t, reg.QRCode)

	rec, env = s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "alice", registerBody("alice"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.ErrAlreadyRegistered.Error(), env.Error)

	rec, _ = s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "bob", registerBody("bob"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = s.do(http.MethodPost, "/api/events/"+event.ID+"/waitlist", "bob", registerBody("bob"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var joined models.WaitlistJoinResult
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, 1, joined.Position)

	rec, env = s.do(http.MethodGet, "/api/events/"+event.ID+"/waitlist/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, string(env.Data))

	rec, _ = s.do(http.MethodDelete, "/api/registrations/"+reg.RegistrationID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(http.MethodDelete, "/api/registrations/"+reg.RegistrationID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled models.CancelResult
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	require.NotNil(t, cancelled.Promotion)
	assert.True(t, cancelled.Promotion.Promoted)
	assert.Equal(t, models.PromotionFree, cancelled.Promotion.Kind)

	rec, env = s.do(http.MethodGet, "/api/events/"+event.ID+"/registration", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"registered":true`)
}

func TestCheckInTwice(t *testing.T) {
	s := newServer(t)
	event := s.createEvent(5, models.TicketTypeFree, 0)
	_, env := s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "alice", registerBody("alice"))
	var reg models.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	body := map[string]string{"qr_code": reg.QRCode}
	rec, _ := s.do(http.MethodPost, "/api/events/"+event.ID+"/checkin", "alice", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(http.MethodPost, "/api/events/"+event.ID+"/checkin", "organizer", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Check-in successful", env.Message)

	rec, env = s.do(http.MethodPost, "/api/events/"+event.ID+"/checkin", "organizer", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.CheckInResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.Success)
	assert.Equal(t, "Already checked in", res.Message)
}

func TestCheckInAtWrongEvent(t *testing.T) {
	s := newServer(t)
	door := s.createEvent(5, models.TicketTypeFree, 0)
	other := s.createEvent(5, models.TicketTypeFree, 0)
	_, env := s.do(http.MethodPost, "/api/events/"+other.ID+"/registrations", "alice", registerBody("alice"))
	var reg models.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	body := map[string]string{"qr_code": reg.QRCode}
	rec, _ := s.do(http.MethodPost, "/api/events/"+door.ID+"/checkin", "organizer", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = s.do(http.MethodPost, "/api/events/"+other.ID+"/checkin", "organizer", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Check-in successful", env.Message)
}

func TestValidationAndNotFound(t *testing.T) {
	s := newServer(t)
	event := s.createEvent(5, models.TicketTypeFree, 0)

	rec, env := s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "alice", map[string]string{"attendee_email": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "attendee_name is required")

	rec, _ = s.do(http.MethodGet, "/api/events/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(http.MethodPost, "/api/events/"+event.ID+"/waitlist", "bob", registerBody("bob"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/registrations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(http.MethodPost, "/api/events/"+event.ID+"/waitlist/claim", "bob", map[string]string{"payment_method": "online"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegistrationQRPNG(t *testing.T) {
	s := newServer(t)
	event := s.createEvent(5, models.TicketTypeFree, 0)
	_, env := s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "alice", registerBody("alice"))
	var reg models.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	rec, _ := s.do(http.MethodGet, "/api/registrations/"+reg.RegistrationID+"/qr.png", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("client went away")
}

func TestRegistrationQRWriteFailureIsLogged(t *testing.T) {
	s := newServer(t)
	var logs bytes.Buffer
	s.handler.Logger = logger.NewWithWriter("test", &logs)

	event := s.createEvent(5, models.TicketTypeFree, 0)
	_, env := s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "alice", registerBody("alice"))
	var reg models.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	req := httptest.NewRequest(http.MethodGet, "/api/registrations/"+reg.RegistrationID+"/qr.png", nil)
	req.Header.Set("X-Test-User", "alice")
	s.router.ServeHTTP(brokenWriter{httptest.NewRecorder()}, req)

	assert.Contains(t, logs.String(), "write failed")
	assert.Contains(t, logs.String(), "client went away")
}

func TestStartCheckout(t *testing.T) {
	s := newServer(t)
	event := s.createEvent(5, models.TicketTypePaid, 300)
	body := registerBody("alice")
	body["payment_method"] = "online"
	_, env := s.do(http.MethodPost, "/api/events/"+event.ID+"/registrations", "alice", body)
	var reg models.RegistrationResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	rec, _ := s.do(http.MethodPost, "/api/registrations/"+reg.RegistrationID+"/checkout", "alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checkout := &MockCheckout{}
	checkout.On("CreateTicketCheckout", mock.Anything, reg.RegistrationID, "alice").
		Return(&models.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/c/cs_test"}, nil)
	s.handler.Checkout = checkout

	rec, env = s.do(http.MethodPost, "/api/registrations/"+reg.RegistrationID+"/checkout", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "cs_test")
	checkout.AssertExpectations(t)
}
