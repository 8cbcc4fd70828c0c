package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ajna-inc/revreg/pkg/core/encoding"
)

// CalculateSHA256HashBytes calculates SHA256 hash and returns as byte slice
func CalculateSHA256HashBytes(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// CalculateSHA256HashString calculates SHA256 hash and returns as hex string
func CalculateSHA256HashString(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// TailsHash computes the content hash of a tails blob the way it is carried
// in registry definitions: base58-encoded SHA256 digest.
func TailsHash(data []byte) string {
	return encoding.EncodeBase58(CalculateSHA256HashBytes(data))
}
