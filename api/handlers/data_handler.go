// api/handlers/data_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-dataapi/api/middleware"
	"github.com/Annany2002/nebula-dataapi/internal/core"
	"github.com/Annany2002/nebula-dataapi/internal/engine"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// BulkRequest is the body of a bulk create.
type BulkRequest struct {
	Data []map[string]any `json:"data" binding:"required,min=1"`
}

// DataHandler serves the generated record endpoints.
type DataHandler struct {
	Engine *engine.Service
}

// NewDataHandler creates a new DataHandler.
func NewDataHandler(svc *engine.Service) *DataHandler {
	return &DataHandler{Engine: svc}
}

// recordID parses the :id path parameter. A non-numeric id names no record.
func recordID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(fmt.Errorf("%w: %q", engine.ErrRecordNotFound, c.Param("id")))
		return 0, false
	}
	return id, true
}

func bindObject(c *gin.Context) (map[string]any, bool) {
	var input map[string]any
	if err := c.ShouldBindJSON(&input); err != nil {
		customLog.Warnf("Handler: Binding error on %s: %v", c.Request.URL.Path, err)
		_ = c.Error(fmt.Errorf("%w: request body must be a JSON object", engine.ErrMalformedInput))
		return nil, false
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, true
}

// List handles GET /data/:table.
func (h *DataHandler) List(c *gin.Context) {
	result, err := h.Engine.List(c.Request.Context(), middleware.IdentityFrom(c), c.Param("table"), c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Schema handles GET /data/:table/schema.
func (h *DataHandler) Schema(c *gin.Context) {
	schema, err := h.Engine.Schema(c.Request.Context(), middleware.IdentityFrom(c), c.Param("table"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, schema)
}

// Show handles GET /data/:table/:id.
func (h *DataHandler) Show(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	include := core.ParseListQueryOptions(c.Request.URL.Query()).Include
	rec, err := h.Engine.Get(c.Request.Context(), middleware.IdentityFrom(c), c.Param("table"), id, include)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

// Create handles POST /data/:table.
func (h *DataHandler) Create(c *gin.Context) {
	input, ok := bindObject(c)
	if !ok {
		return
	}
	rec, err := h.Engine.Create(c.Request.Context(), middleware.IdentityFrom(c), c.Param("table"), input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rec})
}

// Bulk handles POST /data/:table/bulk.
func (h *DataHandler) Bulk(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Handler: Bulk binding error: %v", err)
		_ = c.Error(fmt.Errorf("%w: body must be {\"data\": [ {...}, ... ]} with at least one object", engine.ErrMalformedInput))
		return
	}

	table := c.Param("table")
	count, err := h.Engine.BulkCreate(c.Request.Context(), middleware.IdentityFrom(c), table, req.Data)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("%d records created successfully", count),
		"data":    gin.H{"count": count, "table": table},
	})
}

// Update handles PUT /data/:table/:id.
func (h *DataHandler) Update(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	input, ok := bindObject(c)
	if !ok {
		return
	}
	rec, err := h.Engine.Update(c.Request.Context(), middleware.IdentityFrom(c), c.Param("table"), id, input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

// Delete handles DELETE /data/:table/:id. ?force=1 purges soft-deleted models.
func (h *DataHandler) Delete(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	force := core.ParseBool(c.Query("force"))
	if err := h.Engine.Delete(c.Request.Context(), middleware.IdentityFrom(c), c.Param("table"), id, force); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

// Restore handles POST /data/:table/:id/restore.
func (h *DataHandler) Restore(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}
	rec, err := h.Engine.Restore(c.Request.Context(), middleware.IdentityFrom(c), c.Param("table"), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}
