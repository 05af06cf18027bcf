package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/payment"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}

func (m *MockPaymentService) VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (*models.VerifyPaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VerifyPaymentResult), args.Error(1)
}

func newRouter(svc PaymentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewStripeHandler(svc, "http://front.test", logger.Nop()).Register(r)
	return r
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook(t *testing.T) {
	svc := new(MockPaymentService)
	r := newRouter(svc)

	svc.On("HandleWebhook", mock.Anything, []byte(`{"id":"evt_1"}`), "t=1,v1=abc").Return(nil).Once()
	rec := serve(r, http.MethodPost, "/api/payments/webhook", `{"id":"evt_1"}`, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"received":true`)

	svc.On("HandleWebhook", mock.Anything, []byte(`bad`), "").Return(&payment.WebhookError{
		Category:    "validation",
		StatusCode:  http.StatusBadRequest,
		PublicError: "invalid signature",
	}).Once()
	rec = serve(r, http.MethodPost, "/api/payments/webhook", `bad`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid signature")

	svc.On("HandleWebhook", mock.Anything, []byte(`boom`), "").Return(&payment.WebhookError{
		Category:    "database",
		StatusCode:  http.StatusInternalServerError,
		PublicError: "failed to settle payment",
	}).Once()
	rec = serve(r, http.MethodPost, "/api/payments/webhook", `boom`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	svc.AssertExpectations(t)
}

func TestVerifyPayment(t *testing.T) {
	svc := new(MockPaymentService)
	r := newRouter(svc)
	header := map[string]string{"Content-Type": "application/json"}

	rec := serve(r, http.MethodPost, "/api/payments/verify", `{}`, header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.On("VerifyPayment", mock.Anything, models.VerifyPaymentRequest{RegistrationID: "r1", SessionID: "cs_1"}).
		Return(&models.VerifyPaymentResult{RegistrationID: "r1", Status: models.VerifyStatusVerified}, nil).Once()
	rec = serve(r, http.MethodPost, "/api/payments/verify", `{"registration_id":"r1","session_id":"cs_1"}`, header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "verified")

	svc.On("VerifyPayment", mock.Anything, models.VerifyPaymentRequest{RegistrationID: "r2"}).
		Return(&models.VerifyPaymentResult{RegistrationID: "r2", Status: models.VerifyStatusPaymentIncomplete}, nil).Once()
	rec = serve(r, http.MethodPost, "/api/payments/verify", `{"registration_id":"r2"}`, header)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	svc.On("VerifyPayment", mock.Anything, models.VerifyPaymentRequest{RegistrationID: "r3"}).
		Return(nil, models.ErrRegistrationNotFound).Once()
	rec = serve(r, http.MethodPost, "/api/payments/verify", `{"registration_id":"r3"}`, header)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.On("VerifyPayment", mock.Anything, models.VerifyPaymentRequest{RegistrationID: "r4"}).
		Return(nil, models.ErrPaymentProviderNotEnabled).Once()
	rec = serve(r, http.MethodPost, "/api/payments/verify", `{"registration_id":"r4"}`, header)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.On("VerifyPayment", mock.Anything, models.VerifyPaymentRequest{RegistrationID: "r5"}).
		Return(nil, errors.New("stripe down")).Once()
	rec = serve(r, http.MethodPost, "/api/payments/verify", `{"registration_id":"r5"}`, header)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "stripe down")

	svc.AssertExpectations(t)
}

func TestVerifyRedirect(t *testing.T) {
	svc := new(MockPaymentService)
	r := newRouter(svc)

	location := func(rec *httptest.ResponseRecorder) url.Values {
		require.Equal(t, http.StatusSeeOther, rec.Code)
		u, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/my-tickets", u.Path)
		return u.Query()
	}

	q := location(serve(r, http.MethodGet, "/api/payments/verify", "", nil))
	assert.Equal(t, "error", q.Get("ticket_status"))
	assert.Equal(t, "missing_id", q.Get("msg"))

	svc.On("VerifyPayment", mock.Anything, models.VerifyPaymentRequest{RegistrationID: "r1", SessionID: "cs_1"}).
		Return(&models.VerifyPaymentResult{RegistrationID: "r1", Status: models.VerifyStatusAlreadyPaid, AlreadyPaid: true}, nil).Once()
	q = location(serve(r, http.MethodGet, "/api/payments/verify?registration_id=r1&session_id=cs_1", "", nil))
	assert.Equal(t, models.VerifyStatusAlreadyPaid, q.Get("ticket_status"))

	svc.On("VerifyPayment", mock.Anything, models.VerifyPaymentRequest{RegistrationID: "gone"}).
		Return(nil, models.ErrRegistrationNotFound).Once()
	q = location(serve(r, http.MethodGet, "/api/payments/verify?registration_id=gone", "", nil))
	assert.Equal(t, "not_found", q.Get("msg"))

	svc.AssertExpectations(t)
}
