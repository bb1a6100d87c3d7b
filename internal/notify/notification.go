// Package notify turns job events into per-user inbox notifications.
package notify

import "time"

// Notification kinds
const (
	KindActionRequired = "ACTION_REQUIRED"
	KindAssigned       = "ASSIGNED"
	KindStepUpdate     = "STEP_UPDATE"
	KindReturned       = "RETURNED"
	KindReassigned     = "REASSIGNED"
	KindComment        = "COMMENT"
	KindOverdue        = "OVERDUE"
)

// Notification is an entry in a user's inbox. DedupeKey together with
// RecipientID is unique, which makes redelivered events harmless.
type Notification struct {
	ID          string
	RecipientID string
	JobID       string
	StepID      string
	Kind        string
	Message     string
	DedupeKey   string
	CreatedAt   time.Time
	ReadAt      *time.Time
}
