package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FormulaSyntaxError is a formula that does not parse
type FormulaSyntaxError struct {
	Message string
	Line    int
	Column  int
	Offset  int
}

func (e *FormulaSyntaxError) Error() string {
	return fmt.Sprintf("Error with formula: Invalid syntax at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

func (e *FormulaSyntaxError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *FormulaSyntaxError) Code() string {
	return "ERROR_WITH_FORMULA"
}

func (e *FormulaSyntaxError) Details() any {
	return map[string]int{"line": e.Line, "column": e.Column, "offset": e.Offset}
}

// FormulaTypeError is a formula that parses but does not type
type FormulaTypeError struct {
	Field   string
	Message string
}

func (e *FormulaTypeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("Error with formula for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("Error with formula: %s", e.Message)
}

func (e *FormulaTypeError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *FormulaTypeError) Code() string {
	return "ERROR_WITH_FORMULA"
}

// NewFormulaTypeError creates a new FormulaTypeError
func NewFormulaTypeError(field, message string) *FormulaTypeError {
	return &FormulaTypeError{Field: field, Message: message}
}

// Dependency error kinds.
const (
	DependencySelfReference     = "self_reference"
	DependencyCircularReference = "circular_reference"
)

// FieldDependencyError rejects a field change that would make a field depend on itself
type FieldDependencyError struct {
	Kind string
	// Path is the chain of field names that closes the cycle.
	Path []string
}

func (e *FieldDependencyError) Error() string {
	if e.Kind == DependencySelfReference {
		return "a field cannot reference itself"
	}
	if len(e.Path) > 0 {
		return fmt.Sprintf("circular field references are not allowed: %s", strings.Join(e.Path, " -> "))
	}
	return "circular field references are not allowed"
}

func (e *FieldDependencyError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *FieldDependencyError) Code() string {
	if e.Kind == DependencySelfReference {
		return "ERROR_FIELD_SELF_REFERENCE"
	}
	return "ERROR_FIELD_CIRCULAR_REFERENCE"
}

func (e *FieldDependencyError) Details() any {
	return map[string]any{"kind": e.Kind, "path": e.Path}
}

// NewSelfReferenceError creates a FieldDependencyError for a field referencing itself
func NewSelfReferenceError(name string) *FieldDependencyError {
	return &FieldDependencyError{Kind: DependencySelfReference, Path: []string{name, name}}
}

// NewCircularReferenceError creates a FieldDependencyError for a cycle
func NewCircularReferenceError(path []string) *FieldDependencyError {
	return &FieldDependencyError{Kind: DependencyCircularReference, Path: path}
}

// IsFormulaError checks if an error is a syntax or type error of a formula
func IsFormulaError(err error) bool {
	var syntax *FormulaSyntaxError
	var typeErr *FormulaTypeError
	return errors.As(err, &syntax) || errors.As(err, &typeErr)
}

// IsDependencyError checks if an error is a FieldDependencyError
func IsDependencyError(err error) bool {
	var dep *FieldDependencyError
	return errors.As(err, &dep)
}
