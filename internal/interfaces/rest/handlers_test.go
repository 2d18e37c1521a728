package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/backend/internal/application/services"
	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/internal/interfaces/rest"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula"
	"github.com/gridbase/backend/pkg/formula/types"
)

// MockFieldService is a mock implementation of rest.FieldService
type MockFieldService struct {
	mock.Mock
}

func (m *MockFieldService) CreateTable(ctx context.Context, name string) (*models.Table, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Table), args.Error(1)
}

func (m *MockFieldService) CreateField(ctx context.Context, tableID int64, in services.FieldInput) (*models.FieldChange, error) {
	args := m.Called(ctx, tableID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FieldChange), args.Error(1)
}

func (m *MockFieldService) UpdateField(ctx context.Context, fieldID int64, upd services.FieldUpdate) (*models.FieldChange, error) {
	args := m.Called(ctx, fieldID, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FieldChange), args.Error(1)
}

func (m *MockFieldService) DeleteField(ctx context.Context, fieldID int64) (*models.FieldChange, error) {
	args := m.Called(ctx, fieldID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FieldChange), args.Error(1)
}

func (m *MockFieldService) RetypeAndUpdateDependents(ctx context.Context, fieldID int64) (*models.FieldChange, error) {
	args := m.Called(ctx, fieldID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FieldChange), args.Error(1)
}

func (m *MockFieldService) TypeFormula(ctx context.Context, tableID int64, req services.TypeFormulaRequest) (*models.FormulaTypePreview, error) {
	args := m.Called(ctx, tableID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FormulaTypePreview), args.Error(1)
}

type stubCatalog struct {
	cleared int
}

func (s *stubCatalog) Functions() []formula.FunctionDefinition {
	return []formula.FunctionDefinition{
		{Name: "upper", Category: "text"},
		{Name: "abs", Category: "number"},
		{Name: "sum", Category: "aggregate", Aggregate: true},
	}
}

func (s *stubCatalog) ClearCache() { s.cleared++ }

type errPinger struct{ err error }

func (p errPinger) Ping(context.Context) error { return p.err }

func setup(svc *MockFieldService, catalog *stubCatalog, db rest.Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return rest.NewRouter(rest.NewFieldHandler(svc), rest.NewFormulaHandler(svc, catalog), db)
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestFieldHandler_CreateTable(t *testing.T) {
	svc := new(MockFieldService)
	r := setup(svc, &stubCatalog{}, nil)
	svc.On("CreateTable", mock.Anything, "Products").Return(&models.Table{ID: 4, Name: "Products"}, nil)

	w := do(r, http.MethodPost, "/api/tables", gin.H{"name": "Products"})
	assert.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 4, data["id"])

	w = do(r, http.MethodPost, "/api/tables", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestFieldHandler_CreateField(t *testing.T) {
	svc := new(MockFieldService)
	r := setup(svc, &stubCatalog{}, nil)

	in := services.FieldInput{Name: "Total", Type: "formula", Formula: "field('Price') * 2"}
	attrs := types.Number{DecimalPlaces: 2, Null: true}.Attributes()
	change := &models.FieldChange{
		Field:         &models.Field{ID: 9, TableID: 4, Name: "Total", Type: "formula", Formula: in.Formula, FormulaType: &attrs},
		UpdatedFields: []*models.Field{},
	}
	svc.On("CreateField", mock.Anything, int64(4), in).Return(change, nil)

	w := do(r, http.MethodPost, "/api/tables/4/fields", in)
	require.Equal(t, http.StatusCreated, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	field := data["field"].(map[string]any)
	assert.Equal(t, "Total", field["name"])
	assert.Equal(t, "number", field["formula_type"].(map[string]any)["formula_type"])
	assert.Empty(t, data["related_fields"])
	svc.AssertExpectations(t)
}

func TestFieldHandler_CreateFieldErrors(t *testing.T) {
	svc := new(MockFieldService)
	r := setup(svc, &stubCatalog{}, nil)

	w := do(r, http.MethodPost, "/api/tables/abc/fields", gin.H{"name": "X", "type": "text"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	in := services.FieldInput{Name: "Me", Type: "formula", Formula: "field('Me')"}
	svc.On("CreateField", mock.Anything, int64(4), in).Return(nil, apperrors.NewSelfReferenceError("Me"))
	w = do(r, http.MethodPost, "/api/tables/4/fields", in)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ERROR_FIELD_SELF_REFERENCE", body["code"])

	in = services.FieldInput{Name: "Boom", Type: "text"}
	svc.On("CreateField", mock.Anything, int64(4), in).Return(nil, errors.New("connection reset"))
	w = do(r, http.MethodPost, "/api/tables/4/fields", in)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestFieldHandler_UpdateAndDelete(t *testing.T) {
	svc := new(MockFieldService)
	r := setup(svc, &stubCatalog{}, nil)

	name := "Cost"
	svc.On("UpdateField", mock.Anything, int64(2), services.FieldUpdate{Name: &name}).
		Return(&models.FieldChange{Field: &models.Field{ID: 2, Name: "Cost"}, UpdatedFields: []*models.Field{{ID: 3}}}, nil)
	w := do(r, http.MethodPatch, "/api/fields/2", gin.H{"name": "Cost"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Len(t, data["related_fields"], 1)

	invalid := &models.Field{ID: 3, Error: "references the deleted or unknown field Cost"}
	svc.On("DeleteField", mock.Anything, int64(2)).
		Return(&models.FieldChange{UpdatedFields: []*models.Field{invalid}, NewlyInvalidFields: []*models.Field{invalid}}, nil)
	w = do(r, http.MethodDelete, "/api/fields/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.Len(t, data["newly_invalid_fields"], 1)

	svc.On("DeleteField", mock.Anything, int64(1)).Return(nil, apperrors.NewValidationError("field", "the primary field cannot be deleted"))
	w = do(r, http.MethodDelete, "/api/fields/1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.On("RetypeAndUpdateDependents", mock.Anything, int64(8)).Return(nil, apperrors.NewNotFoundError("Field", "8"))
	w = do(r, http.MethodPost, "/api/fields/8/retype", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}

func TestFormulaHandler_TypeFormula(t *testing.T) {
	svc := new(MockFieldService)
	r := setup(svc, &stubCatalog{}, nil)

	req := services.TypeFormulaRequest{Formula: "field('Price') * 1.5", Row: map[string]any{"Price": "10.00"}}
	svc.On("TypeFormula", mock.Anything, int64(4), req).Return(&models.FormulaTypePreview{
		FormulaType: types.Number{DecimalPlaces: 2, Null: true}.Attributes(),
		Value:       "15.00",
	}, nil)
	w := do(r, http.MethodPost, "/api/tables/4/formula/type", req)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "15.00", data["value"])
	assert.Equal(t, "number", data["formula_type"].(map[string]any)["formula_type"])

	bad := services.TypeFormulaRequest{Formula: "1 +"}
	svc.On("TypeFormula", mock.Anything, int64(4), bad).Return(nil, &apperrors.FormulaSyntaxError{Message: "unexpected end of input", Line: 1, Column: 4})
	w = do(r, http.MethodPost, "/api/tables/4/formula/type", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotNil(t, decode(t, w)["details"])
	svc.AssertExpectations(t)
}

func TestFormulaHandler_Functions(t *testing.T) {
	catalog := &stubCatalog{}
	r := setup(new(MockFieldService), catalog, nil)

	w := do(r, http.MethodGet, "/api/formula/functions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]any)
	require.Len(t, data, 3)
	assert.Equal(t, "abs", data[0].(map[string]any)["name"])

	w = do(r, http.MethodGet, "/api/formula/functions?category=text", nil)
	assert.Len(t, decode(t, w)["data"], 1)

	w = do(r, http.MethodDelete, "/api/formula/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, catalog.cleared)
}

func TestHealth(t *testing.T) {
	r := setup(new(MockFieldService), &stubCatalog{}, errPinger{})
	w := do(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	r = setup(new(MockFieldService), &stubCatalog{}, errPinger{err: errors.New("down")})
	w = do(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
