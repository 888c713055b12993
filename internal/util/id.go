package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const projectIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewProjectID returns a 12-character alphanumeric project identifier.
func NewProjectID() string {
	id := make([]byte, 12)
	max := big.NewInt(int64(len(projectIDAlphabet)))
	for i := range id {
		n, _ := rand.Int(rand.Reader, max)
		id[i] = projectIDAlphabet[n.Int64()]
	}
	return string(id)
}
