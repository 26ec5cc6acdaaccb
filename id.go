package smartermodel

import (
	"github.com/google/uuid"
)

// NewID generates a UUIDv7 identifier. UUIDv7 values sort by creation time,
// which keeps primary-key indexes of the relational backends append-mostly.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// IsValidID checks if a string is a valid UUID
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
