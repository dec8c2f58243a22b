package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy behind every generated id.
const tokenBytes = 16

var readRandom = rand.Read

// NewID returns a random hex id, prefixed as "<prefix>_" when prefix is set.
func NewID(prefix string) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := readRandom(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	if prefix == "" {
		return hex.EncodeToString(buf), nil
	}
	return prefix + "_" + hex.EncodeToString(buf), nil
}
