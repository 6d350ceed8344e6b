package utils

import "github.com/google/uuid"

// GenerateID returns a random (v4) UUID string. Every entity id and
// history entry id in the engine comes from here.
func GenerateID() string {
	return uuid.NewString()
}
