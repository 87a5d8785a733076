package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
)

type recordReadingRequest struct {
	CustomerID      string           `json:"customerId" binding:"required"`
	PeriodID        string           `json:"periodId"`
	PreviousReading *decimal.Decimal `json:"previousReading"`
	CurrentReading  *decimal.Decimal `json:"currentReading" binding:"required"`
	ReadingDate     *time.Time       `json:"readingDate"`
}

func (s *Server) RecordReading(c *gin.Context) {
	var req recordReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.billingSvc.RecordReading(c.Request.Context(), billingdomain.RecordReadingRequest{
		CustomerID:      req.CustomerID,
		PeriodID:        req.PeriodID,
		PreviousReading: req.PreviousReading,
		CurrentReading:  *req.CurrentReading,
		ReadingDate:     req.ReadingDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReadingByID(c *gin.Context) {
	resp, err := s.readingSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBillByID(c *gin.Context) {
	resp, err := s.billingSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBillPayments(c *gin.Context) {
	resp, err := s.paymentSvc.ListByBill(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type recordPaymentRequest struct {
	BillID        string           `json:"billId" binding:"required"`
	Amount        *decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate   *time.Time       `json:"paymentDate"`
	PaymentMethod string           `json:"paymentMethod"`
	Notes         string           `json:"notes"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		BillID:        req.BillID,
		Amount:        *req.Amount,
		PaymentDate:   req.PaymentDate,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	resp, err := s.paymentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
