package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gridbase/backend/internal/application/services"
	"github.com/gridbase/backend/internal/domain/models"
)

// FieldService is what the field and formula endpoints need from the
// application layer.
type FieldService interface {
	CreateTable(ctx context.Context, name string) (*models.Table, error)
	CreateField(ctx context.Context, tableID int64, in services.FieldInput) (*models.FieldChange, error)
	UpdateField(ctx context.Context, fieldID int64, upd services.FieldUpdate) (*models.FieldChange, error)
	DeleteField(ctx context.Context, fieldID int64) (*models.FieldChange, error)
	RetypeAndUpdateDependents(ctx context.Context, fieldID int64) (*models.FieldChange, error)
	TypeFormula(ctx context.Context, tableID int64, req services.TypeFormulaRequest) (*models.FormulaTypePreview, error)
}

type FieldHandler struct {
	svc FieldService
}

func NewFieldHandler(svc FieldService) *FieldHandler {
	return &FieldHandler{svc: svc}
}

// CreateTableRequest is the body of POST /api/tables
type CreateTableRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateTable handles POST /api/tables
func (h *FieldHandler) CreateTable(c *gin.Context) {
	var req CreateTableRequest
	if !BindJSON(c, &req) {
		return
	}
	table, err := h.svc.CreateTable(c.Request.Context(), req.Name)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusCreated, table)
}

// CreateField handles POST /api/tables/:id/fields
func (h *FieldHandler) CreateField(c *gin.Context) {
	tableID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var in services.FieldInput
	if !BindJSON(c, &in) {
		return
	}
	change, err := h.svc.CreateField(c.Request.Context(), tableID, in)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusCreated, change)
}

// UpdateField handles PATCH /api/fields/:id
func (h *FieldHandler) UpdateField(c *gin.Context) {
	fieldID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var upd services.FieldUpdate
	if !BindJSON(c, &upd) {
		return
	}
	change, err := h.svc.UpdateField(c.Request.Context(), fieldID, upd)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, change)
}

// DeleteField handles DELETE /api/fields/:id
func (h *FieldHandler) DeleteField(c *gin.Context) {
	fieldID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	change, err := h.svc.DeleteField(c.Request.Context(), fieldID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, change)
}

// RetypeDependants handles POST /api/fields/:id/retype
func (h *FieldHandler) RetypeDependants(c *gin.Context) {
	fieldID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	HandleGet(c, func() (any, error) {
		return h.svc.RetypeAndUpdateDependents(c.Request.Context(), fieldID)
	})
}
