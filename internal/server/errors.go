package server

import (
	"errors"
	"net/http"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRecordNotFound),
		errors.Is(err, domain.ErrUnknownDiscountCode):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrTerminalStatus),
		errors.Is(err, domain.ErrDuplicateDiscountCode):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDiscountInactive),
		errors.Is(err, domain.ErrDiscountNotStarted),
		errors.Is(err, domain.ErrDiscountExpired),
		errors.Is(err, domain.ErrDiscountUsageExceeded):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, domain.ErrInvalidPayment),
		errors.Is(err, domain.ErrMissingInvoiceID):
		status = http.StatusBadRequest
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
