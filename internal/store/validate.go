package store

import "fmt"

// MaxKeyLength is the maximum allowed key length.
// Matches the VARCHAR(255) key column of the SQL drivers.
const MaxKeyLength = 255

// ValidateKey rejects empty and over-long keys.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("store: empty key")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("store: key too long: %d chars (max %d)", len(key), MaxKeyLength)
	}
	return nil
}
