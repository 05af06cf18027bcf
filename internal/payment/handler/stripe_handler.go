package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/payment"
	"ms-registration/internal/utils"
	"ms-registration/internal/validation"
)

// maxWebhookBody caps the webhook payload Stripe may send.
const maxWebhookBody = 65536

// PaymentService is what the gateway exposes over HTTP.
type PaymentService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	VerifyPayment(ctx context.Context, req models.VerifyPaymentRequest) (*models.VerifyPaymentResult, error)
}

type StripeHandler struct {
	service     PaymentService
	frontendURL string
	logger      *logger.Logger
}

func NewStripeHandler(service PaymentService, frontendURL string, logger *logger.Logger) *StripeHandler {
	return &StripeHandler{service: service, frontendURL: frontendURL, logger: logger}
}

// Register mounts the payment routes on a gin engine.
func (h *StripeHandler) Register(r gin.IRouter) {
	g := r.Group("/api/payments")
	g.POST("/webhook", h.StripeWebhook)
	g.POST("/verify", h.VerifyPayment)
	g.GET("/verify", h.VerifyRedirect)
}

// StripeWebhook handles webhook events from Stripe
func (h *StripeHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", "failed to read body"))
		return
	}

	err = h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.logger.Info("API", fmt.Sprintf("StripeWebhook: category=%s status=%d", webhookErr.Category, webhookErr.StatusCode))
			c.JSON(webhookErr.StatusCode, utils.ErrorResponse("Webhook processing error", webhookErr.PublicError))
			return
		}
		h.logger.Error("API", fmt.Sprintf("StripeWebhook: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Webhook processing error", "webhook rejected"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// VerifyPayment is the JSON poll used by the client after checkout.
func (h *StripeHandler) VerifyPayment(c *gin.Context) {
	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	result, err := h.service.VerifyPayment(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if result.Status == models.VerifyStatusPaymentIncomplete {
		c.JSON(http.StatusPaymentRequired, utils.ErrorResponse("Payment not completed", result.Status))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payment "+result.Status, result))
}

// VerifyRedirect is Stripe's success_url target: settle, then send the browser
// back to the ticket page with the outcome in the query string.
func (h *StripeHandler) VerifyRedirect(c *gin.Context) {
	target, _ := url.Parse(h.frontendURL + "/my-tickets")
	q := target.Query()

	req := models.VerifyPaymentRequest{
		RegistrationID: c.Query("registration_id"),
		SessionID:      c.Query("session_id"),
	}
	switch result, err := h.verifyForRedirect(c, req); {
	case err != nil:
		q.Set("ticket_status", "error")
		q.Set("msg", err.Error())
	case result.Status == models.VerifyStatusPaymentIncomplete:
		q.Set("ticket_status", "error")
		q.Set("msg", result.Status)
	default:
		q.Set("ticket_status", result.Status)
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusSeeOther, target.String())
}

func (h *StripeHandler) verifyForRedirect(c *gin.Context, req models.VerifyPaymentRequest) (*models.VerifyPaymentResult, error) {
	if req.RegistrationID == "" {
		return nil, errors.New("missing_id")
	}
	result, err := h.service.VerifyPayment(c.Request.Context(), req)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, errors.New("not_found")
		}
		h.logger.Error("API", fmt.Sprintf("VerifyRedirect %s: %v", req.RegistrationID, err))
		return nil, errors.New("server_error")
	}
	return result, nil
}

func (h *StripeHandler) writeError(c *gin.Context, err error) {
	switch {
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Registration not found", err.Error()))
	case models.IsConflict(err):
		c.JSON(http.StatusConflict, utils.ErrorResponse("Payment not applicable", err.Error()))
	case errors.Is(err, models.ErrPaymentProviderNotEnabled):
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Payments unavailable", err.Error()))
	default:
		h.logger.Error("API", fmt.Sprintf("VerifyPayment: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to verify payment", "internal error"))
	}
}
