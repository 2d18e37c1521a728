package ast

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// NormalizeName folds a function name for case insensitive lookup.
func NormalizeName(name string) string {
	return folder.String(strings.TrimSpace(name))
}
