// Package utils holds small helpers shared by the binaries and services.
package utils

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewEventID returns a random id for correlating logged errors with responses.
func NewEventID() string {
	return uuid.NewString()
}

// ParseID parses a positive int64 id from a path or CLI argument.
func ParseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
