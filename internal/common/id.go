package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewGroupID generates a short identifier for duplicate/similar groups.
// 16 hex chars is unique enough at household scale while staying readable
// in logs and URLs.
func NewGroupID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}
