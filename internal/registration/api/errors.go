package api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-registration/internal/models"
	"ms-registration/internal/utils"
	"ms-registration/internal/validation"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidPaymentMethod):
		return http.StatusBadRequest
	case models.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case models.IsConflict(err), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrPaymentProviderNotEnabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	public := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %s: %v", r.Method, r.URL.Path, message, err))
		public = "internal error"
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(message, public))
}
