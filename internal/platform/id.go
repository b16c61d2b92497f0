package platform

import (
	"github.com/google/uuid"
)

// NewID returns a random identifier used to correlate the log lines of one
// issuance run.
func NewID() string {
	return uuid.New().String()
}
