package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type AlertID string

// NewAlertID generates a new unique AlertID
func NewAlertID() AlertID {
	return AlertID(uuid.New().String())
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Validate checks if the severity is valid
func (s Severity) Validate() error {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return nil
	default:
		return goerr.Wrap(ErrValidation, "invalid severity", goerr.V("severity", s))
	}
}

// Urgency is the structured assessment of whether a synthesis warrants
// a notification, produced by the reasoning capability.
type Urgency struct {
	ShouldAlert bool     `json:"should_alert"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Reason      string   `json:"reason"`
	KeyPoints   []string `json:"key_points"`
}

// Alert is one emitted notification. Alerts are retained in a rolling
// window purely for deduplication and are never mutated after creation.
type Alert struct {
	ID        AlertID
	Severity  Severity
	Title     string
	Message   string
	KeyPoints []string
	Sources   []string
	Query     string
	CreatedAt time.Time
}
