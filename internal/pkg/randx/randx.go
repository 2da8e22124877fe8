/*
Package randx provides random identifiers and seeds.

Session IDs are UUID v4 strings used to correlate log lines and audit events of one
connection. Seeds come from crypto/rand and initialize the pseudo-random sources used
for dice rolls and taunt selection.
*/
package randx

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// SessionID generates a standard UUID v4 string to identify one chat connection.
func SessionID() string {
	return uuid.New().String()
}

// IsValidSessionID reports whether id parses as a UUID.
func IsValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Seed generates a random seed using crypto/rand.
func Seed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
