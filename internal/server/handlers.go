package server

import (
	"net/http"
	"time"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/billing/service"
	"github.com/gin-gonic/gin"
)

func (s *Server) listInvoices(c *gin.Context) {
	invoices, err := s.billing.ListInvoices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (s *Server) invoiceQueue(c *gin.Context) {
	queue, err := s.billing.QueueInvoices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": queue})
}

func (s *Server) getInvoice(c *gin.Context) {
	detail, err := s.billing.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) processPayment(c *gin.Context) {
	var req service.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidPayment)
		return
	}
	if req.InvoiceID == "" && req.InvoiceNumber == "" {
		respondError(c, domain.ErrMissingInvoiceID)
		return
	}
	if req.Subtotal < 0 {
		respondError(c, domain.ErrInvalidPayment)
		return
	}

	result, err := s.billing.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) listRecords(c *gin.Context) {
	var records []domain.BillingRecord
	switch {
	case c.Query("patientId") != "":
		records = s.ledger.GetRecordsByPatient(c.Query("patientId"))
	case c.Query("type") != "":
		records = s.ledger.GetRecordsByType(domain.RecordType(c.Query("type")))
	case c.Query("from") != "" || c.Query("to") != "":
		from, okFrom := parseDay(c.Query("from"))
		to, okTo := parseDay(c.Query("to"))
		if (c.Query("from") != "" && !okFrom) || (c.Query("to") != "" && !okTo) {
			respondError(c, domain.ErrInvalidRecord)
			return
		}
		if okTo {
			// Inclusive end of day.
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		records = s.ledger.GetRecordsByDateRange(from, to)
	default:
		records = s.ledger.GetAllRecords()
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) updateRecordStatus(c *gin.Context) {
	var req struct {
		Status domain.RecordStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidRecord)
		return
	}
	if err := s.ledger.UpdateRecordStatus(c.Param("id"), req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearRecords(c *gin.Context) {
	notify := c.Query("notify") != "false"
	s.ledger.ClearAllRecords(notify)
	c.Status(http.StatusNoContent)
}

func (s *Server) listDiscounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"discounts": s.catalog.List()})
}

func (s *Server) validateDiscount(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrUnknownDiscountCode)
		return
	}
	if err := s.catalog.Validate(req.Code); err != nil {
		respondError(c, err)
		return
	}
	d, err := s.catalog.Get(req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "discount": d})
}

func (s *Server) dashboardSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.billing.Summary(c.Request.Context()))
}

func (s *Server) setRemoteSync(c *gin.Context) {
	var req struct {
		Suppressed bool `json:"suppressed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrInvalidRecord)
		return
	}
	s.ledger.SetRemoteSyncSuppressed(req.Suppressed)
	c.JSON(http.StatusOK, gin.H{"suppressed": req.Suppressed})
}

func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
