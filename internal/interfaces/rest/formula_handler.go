package rest

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gridbase/backend/internal/application/services"
	"github.com/gridbase/backend/pkg/formula"
)

// FunctionCatalog lists the formula functions and owns the evaluation cache.
type FunctionCatalog interface {
	Functions() []formula.FunctionDefinition
	ClearCache()
}

type FormulaHandler struct {
	svc     FieldService
	catalog FunctionCatalog
}

func NewFormulaHandler(svc FieldService, catalog FunctionCatalog) *FormulaHandler {
	return &FormulaHandler{svc: svc, catalog: catalog}
}

// TypeFormula handles POST /api/tables/:id/formula/type
func (h *FormulaHandler) TypeFormula(c *gin.Context) {
	tableID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req services.TypeFormulaRequest
	if !BindJSON(c, &req) {
		return
	}
	HandleGet(c, func() (any, error) {
		return h.svc.TypeFormula(c.Request.Context(), tableID, req)
	})
}

// GetFunctions handles GET /api/formula/functions
// An optional ?category= narrows the list.
func (h *FormulaHandler) GetFunctions(c *gin.Context) {
	category := strings.ToLower(c.Query("category"))
	defs := h.catalog.Functions()
	out := make([]formula.FunctionDefinition, 0, len(defs))
	for _, d := range defs {
		if category == "" || d.Category == category {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	RespondData(c, http.StatusOK, out)
}

// ClearCache handles DELETE /api/formula/cache
func (h *FormulaHandler) ClearCache(c *gin.Context) {
	h.catalog.ClearCache()
	c.JSON(http.StatusOK, gin.H{"message": "Formula cache cleared"})
}
