package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/auth"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	"ms-registration/internal/utils"
	"ms-registration/internal/validation"
)

// CheckoutStarter opens a hosted payment page for a pending registration.
type CheckoutStarter interface {
	CreateTicketCheckout(ctx context.Context, registrationID, userID string) (*models.CheckoutSession, error)
}

// QRRenderer turns a check-in code into a PNG.
type QRRenderer interface {
	PNG(token string) ([]byte, error)
}

type Handler struct {
	Service  *registration.RegistrationService
	Checkout CheckoutStarter
	QR       QRRenderer
	Logger   *logger.Logger
}

func NewHandler(service *registration.RegistrationService, checkout CheckoutStarter, qr QRRenderer, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{Service: service, Checkout: checkout, QR: qr, Logger: log}
}

// Routes mounts the API under /api. authMW must resolve the caller into the
// request context.
func (h *Handler) Routes(r chi.Router, authMW func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/events/{eventID}", h.GetEvent)
		r.Get("/events/{eventID}/waitlist/count", h.WaitlistCount)

		r.Group(func(r chi.Router) {
			r.Use(authMW)

			r.Post("/events", h.CreateEvent)
			r.Post("/events/{eventID}/registrations", h.Register)
			r.Get("/events/{eventID}/registrations", h.EventRegistrations)
			r.Get("/events/{eventID}/registration", h.CheckRegistration)
			r.Post("/events/{eventID}/checkin", h.CheckIn)

			r.Post("/events/{eventID}/waitlist", h.JoinWaitlist)
			r.Get("/events/{eventID}/waitlist", h.ListWaitlist)
			r.Delete("/events/{eventID}/waitlist", h.LeaveWaitlist)
			r.Get("/events/{eventID}/waitlist/position", h.WaitlistPosition)
			r.Post("/events/{eventID}/waitlist/claim", h.ClaimOffer)
			r.Post("/events/{eventID}/waitlist/promote", h.PromoteNext)

			r.Get("/registrations", h.MyRegistrations)
			r.Get("/registrations/{registrationID}", h.GetRegistration)
			r.Delete("/registrations/{registrationID}", h.CancelRegistration)
			r.Get("/registrations/{registrationID}/qr.png", h.RegistrationQR)
			r.Post("/registrations/{registrationID}/offline-payment", h.MarkOfflinePaid)
			r.Post("/registrations/{registrationID}/checkout", h.StartCheckout)

			r.Get("/waitlist", h.MyWaitlist)
		})
	})
}

// RequestLogger logs one line per request in the API category.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.status), time.Since(start).String())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field: "body", Tag: "json", Message: "invalid request body: " + err.Error(),
		}}}
	}
	return validation.ValidateStruct(dst)
}

func currentUser(r *http.Request) *models.User {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u
	}
	return &models.User{}
}

// ---------------- EVENTS ----------------

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, "Invalid event", err)
		return
	}
	event, err := h.Service.CreateEvent(r.Context(), currentUser(r), req)
	if err != nil {
		h.writeError(w, r, "Failed to create event", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created", event))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, r, "Failed to get event", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event retrieved", event))
}

// ---------------- REGISTRATIONS ----------------

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, "Invalid registration", err)
		return
	}
	res, err := h.Service.Register(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID, req)
	if err != nil {
		h.writeError(w, r, "Registration failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Registered", res))
}

func (h *Handler) EventRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Service.EventRegistrations(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to list registrations", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registrations retrieved", regs))
}

func (h *Handler) CheckRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Service.CheckRegistration(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to check registration", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration checked", map[string]interface{}{
		"registered":   reg != nil,
		"registration": reg,
	}))
}

func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Service.MyRegistrations(r.Context(), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to list registrations", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registrations retrieved", regs))
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Service.GetRegistration(r.Context(), chi.URLParam(r, "registrationID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to get registration", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration retrieved", reg))
}

func (h *Handler) RegistrationQR(w http.ResponseWriter, r *http.Request) {
	reg, err := h.Service.GetRegistration(r.Context(), chi.URLParam(r, "registrationID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to get registration", err)
		return
	}
	png, err := h.QR.PNG(reg.QRCode)
	if err != nil {
		h.writeError(w, r, "Failed to render QR code", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("RegistrationQR %s: write failed: %v", reg.ID, err))
	}
}

func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Cancel(r.Context(), chi.URLParam(r, "registrationID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Cancellation failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration cancelled", res))
}

func (h *Handler) MarkOfflinePaid(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.MarkOfflinePaid(r.Context(), chi.URLParam(r, "registrationID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to record payment", err)
		return
	}
	msg := "Payment recorded"
	if res.AlreadyPaid {
		msg = "Registration already paid"
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(msg, res))
}

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	if h.Checkout == nil {
		h.writeError(w, r, "Checkout unavailable", models.ErrPaymentProviderNotEnabled)
		return
	}
	session, err := h.Checkout.CreateTicketCheckout(r.Context(), chi.URLParam(r, "registrationID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Checkout failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checkout session created", session))
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, "Invalid check-in", err)
		return
	}
	res, err := h.Service.CheckIn(r.Context(), chi.URLParam(r, "eventID"), req.QRCode, currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Check-in failed", err)
		return
	}
	// a repeat scan is an expected outcome, reported in the body
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(res.Message, res))
}

// ---------------- WAITLIST ----------------

func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req models.AttendeeInfo
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, "Invalid waitlist request", err)
		return
	}
	res, err := h.Service.JoinWaitlist(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID, req)
	if err != nil {
		h.writeError(w, r, "Failed to join waitlist", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Joined waitlist", res))
}

func (h *Handler) WaitlistPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.Service.WaitlistPosition(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to get position", err)
		return
	}
	if pos == nil {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Not on waitlist", nil))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Waitlist position", pos))
}

func (h *Handler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Service.LeaveWaitlist(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to leave waitlist", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Left waitlist", entry))
}

func (h *Handler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.ListWaitlistForOrganizer(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to list waitlist", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Waitlist retrieved", entries))
}

func (h *Handler) WaitlistCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Service.WaitlistCount(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, r, "Failed to count waitlist", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Waitlist count", map[string]int{"count": count}))
}

func (h *Handler) ClaimOffer(w http.ResponseWriter, r *http.Request) {
	var req models.ClaimOfferRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, "Invalid claim", err)
		return
	}
	res, err := h.Service.ClaimOffer(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID, req)
	if err != nil {
		h.writeError(w, r, "Failed to claim offer", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Offer claimed", res))
}

func (h *Handler) PromoteNext(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.PromoteNext(r.Context(), chi.URLParam(r, "eventID"), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Promotion failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Promotion processed", out))
}

func (h *Handler) MyWaitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.MyWaitlistEntries(r.Context(), currentUser(r).ID)
	if err != nil {
		h.writeError(w, r, "Failed to list waitlist entries", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Waitlist entries retrieved", entries))
}
