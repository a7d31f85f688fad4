package gateway

import (
	"errors"
	"net/http"

	"eventhub/internal/session"
	"eventhub/internal/shared/apperr"
	"eventhub/internal/shared/utils/response"
	"eventhub/internal/workflow"
	"eventhub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps a workflow error to the HTTP status the gateway answers with
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrStepInFlight):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrAttemptAbandoned):
		return http.StatusGone
	case errors.Is(err, workflow.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownSession):
		return http.StatusUnauthorized
	}

	switch apperr.KindOf(err) {
	case apperr.AuthFailure:
		return http.StatusUnauthorized
	case apperr.MissingParameter, apperr.InvalidRequest:
		return http.StatusBadRequest
	case apperr.NetworkFailure:
		return http.StatusBadGateway
	case apperr.ReservationFailed, apperr.PaymentIntentFailed, apperr.PaymentFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a StandardApiResponse. Auth failures carry the
// login redirect so the browser drops its view of the session.
func respondError(c *gin.Context, err error, data interface{}) {
	status := statusFor(err)
	logger.GetDefault().LogHTTPError(c, err, status)

	message := err.Error()
	details := gin.H{}
	if e, ok := apperr.As(err); ok {
		message = e.UserMessage()
		details["kind"] = e.Kind
		if e.Status != 0 {
			details["backend_status"] = e.Status
		}
	}
	if status == http.StatusUnauthorized {
		details["redirect"] = session.LoginPath
	}
	if status == http.StatusInternalServerError {
		message = "Something went wrong."
	}

	response.RespondJSON(c, "error", status, message, data, details)
}

func respondValidation(c *gin.Context, err error) {
	response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, gin.H{
		"kind":   apperr.InvalidRequest,
		"detail": err.Error(),
	})
}
