package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	overviewdomain "github.com/smallbiznis/meterbill/internal/billingoverview/domain"
)

func (s *Server) GetOverview(c *gin.Context) {
	var req overviewdomain.OverviewRequest
	for _, q := range []struct {
		name string
		dst  *int
	}{
		{"top", &req.TopConsumers},
		{"recent", &req.RecentPayments},
	} {
		raw := strings.TrimSpace(c.Query(q.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError(q.name, "invalid_"+q.name, "invalid "+q.name))
			return
		}
		*q.dst = n
	}

	resp, err := s.overviewSvc.Overview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPeriodSummary(c *gin.Context) {
	resp, err := s.overviewSvc.PeriodSummary(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBills(c *gin.Context) {
	resp, err := s.billingSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	resp, err := s.paymentSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
