package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Submission is one profile sent to the matching service and its outcome.
// ID is the profile id.
type Submission struct {
	ID            string
	SessionID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Status        string // "pending", "completed", "failed"
	ProfileJSON   string
	ResultJSON    string
	Error         string
	TotalAides    int
	EligibleAides int
}
