// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripflow/internal/maps"
	"tripflow/internal/modules/gateway"
	"tripflow/internal/modules/geo"
	"tripflow/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeTripError maps orchestrator errors onto bridge status codes.
func writeTripError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		validation *gateway.ValidationError
		invalid    *service.InvalidTransitionError
		payment    *gateway.PaymentError
		svc        *gateway.ServiceError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.Is(err, maps.ErrAddressNotFound):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalid):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrOperationInProgress),
		errors.Is(err, geo.ErrSuperseded),
		errors.Is(err, service.ErrDiscarded):
		writeError(c, http.StatusConflict, err.Error())
	case errors.As(err, &payment):
		writeError(c, http.StatusPaymentRequired, payment.Error())
	case errors.As(err, &svc):
		writeError(c, http.StatusBadGateway, svc.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
