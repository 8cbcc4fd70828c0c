package common

import (
	"time"

	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID string
func GenerateUUID() string {
	return uuid.New().String()
}

// IsValidUUID checks if a string is a valid UUID format
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// CurrentTimestamp returns the current timestamp as ISO 8601 string
func CurrentTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NowUnix returns current Unix timestamp
func NowUnix() int64 {
	return time.Now().Unix()
}
