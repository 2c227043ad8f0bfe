package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	tabledomain "github.com/opencounter/opencounter/internal/table/domain"
)

func (s *Server) CreateTable(c *gin.Context) {
	var req tabledomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	table, err := s.tableSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, table)
}

func (s *Server) ListTables(c *gin.Context) {
	tables, err := s.tableSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (s *Server) GetTableByID(c *gin.Context) {
	tableID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	table, err := s.tableSvc.GetByID(c.Request.Context(), tableID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) SetTableStatus(c *gin.Context) {
	tableID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Status tabledomain.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	table, err := s.tableSvc.SetStatus(c.Request.Context(), tableID, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) DeactivateTable(c *gin.Context) {
	tableID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.tableSvc.Deactivate(c.Request.Context(), tableID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) SwitchTable(c *gin.Context) {
	var req struct {
		OrderID     snowflake.ID `json:"order_id"`
		FromTableID snowflake.ID `json:"from_table_id"`
		ToTableID   snowflake.ID `json:"to_table_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == 0 || req.FromTableID == 0 || req.ToTableID == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.tableSvc.Switch(c.Request.Context(), req.OrderID, req.FromTableID, req.ToTableID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) MergeTables(c *gin.Context) {
	var req struct {
		SourceIDs []snowflake.ID `json:"source_ids"`
		TargetID  snowflake.ID   `json:"target_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.SourceIDs) == 0 || req.TargetID == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.tableSvc.Merge(c.Request.Context(), req.SourceIDs, req.TargetID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
