package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a prefixed random hex id. Store-committed rows always carry a
// prefix ("msg", "chat", ...), which keeps them distinguishable from the
// UUID-shaped optimistic ids clients mint before confirmation.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
