package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUID string. Rows created on either backend use the
// same format so a project can be copied between them without rewriting ids.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns a 32 byte hex token, optionally prefixed.
func NewToken(prefix string) string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
