package model

// ACME resource statuses (RFC 8555 section 7.1.6) as reported for orders,
// authorizations and challenges.
const (
	StatusPending    = "pending"
	StatusReady      = "ready"
	StatusProcessing = "processing"
	StatusValid      = "valid"
	StatusInvalid    = "invalid"
)

// InProgress reports whether the CA may still move a resource with this
// status to a terminal state without further client action.
func InProgress(status string) bool {
	return status == StatusPending || status == StatusProcessing
}

// Issuance run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)
