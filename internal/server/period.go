package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
)

type openPeriodRequest struct {
	Name            string     `json:"name" binding:"required"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	PreviousEndDate *time.Time `json:"previousEndDate"`
}

func (s *Server) OpenPeriod(c *gin.Context) {
	var req openPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.periodSvc.OpenNewPeriod(c.Request.Context(), perioddomain.OpenPeriodRequest{
		Name:            req.Name,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		PreviousEndDate: req.PreviousEndDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPeriods(c *gin.Context) {
	resp, err := s.periodSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetActivePeriod(c *gin.Context) {
	resp, err := s.periodSvc.GetActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPeriodByID(c *gin.Context) {
	resp, err := s.periodSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPeriodBills(c *gin.Context) {
	resp, err := s.billingSvc.ListByPeriod(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivatePeriod(c *gin.Context) {
	resp, err := s.periodSvc.Activate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type carryForwardRequest struct {
	FromPeriodID string `json:"fromPeriodId" binding:"required"`
	CustomerID   string `json:"customerId" binding:"required"`
}

// CarryForward retries one customer's rollover into the period in the path.
func (s *Server) CarryForward(c *gin.Context) {
	var req carryForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.periodSvc.CarryForward(c.Request.Context(), perioddomain.CarryForwardRequest{
		FromPeriodID: req.FromPeriodID,
		ToPeriodID:   strings.TrimSpace(c.Param("id")),
		CustomerID:   req.CustomerID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
