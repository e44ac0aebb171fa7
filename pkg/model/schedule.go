package model

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleID string

// NewScheduleID generates a new unique ScheduleID
func NewScheduleID() ScheduleID {
	return ScheduleID(uuid.New().String())
}

// Schedule is one recurring query definition. The cron expression is
// validated before the record is persisted; LastResultHash is empty
// until the first background execution completes.
type Schedule struct {
	ID             ScheduleID
	QueryText      string
	CronExpression string
	Enabled        bool
	AlertOnChange  bool
	MaxSources     int
	LastResultHash string
	LastRunAt      *time.Time
	ExecutionCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
