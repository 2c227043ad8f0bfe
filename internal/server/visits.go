package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListVisits(c *gin.Context) {
	phone := c.Query("phone")
	if phone == "" {
		AbortWithError(c, newValidationError("phone", "invalid_phone", "invalid value"))
		return
	}

	visits, err := s.crmSvc.ListByPhone(c.Request.Context(), phone)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visits": visits})
}
