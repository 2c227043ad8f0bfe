package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	stockdomain "github.com/opencounter/opencounter/internal/stock/domain"
)

func (s *Server) GetStock(c *gin.Context) {
	productID, err := parseIDParam(c, "productId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	outletID := s.parseIDHeader(c, headerOutletID)

	record, err := s.stockSvc.Get(c.Request.Context(), productID, outletID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) AdjustStock(c *gin.Context) {
	var req stockdomain.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProductID == 0 || req.Delta == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.stockSvc.Adjust(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) SetStock(c *gin.Context) {
	var req stockdomain.SetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProductID == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.stockSvc.Set(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) ListLowStock(c *gin.Context) {
	threshold := s.cfg.LowStockThreshold
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("threshold", "invalid_threshold", "invalid value"))
			return
		}
		threshold = parsed
	}

	records, err := s.stockSvc.LowStock(c.Request.Context(), stockdomain.LowStockRequest{Threshold: threshold})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
