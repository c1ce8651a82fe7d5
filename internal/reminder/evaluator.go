package reminder

import (
	"time"

	"ms-studyplanner/internal/models"
)

// DueAt computes the instant a reminder becomes eligible for delivery. It is
// always derived from the event's start date, never from when the reminder
// was created.
func DueAt(event *models.Event, r models.Reminder) time.Time {
	return event.StartDate.Add(-time.Duration(r.MinutesBefore) * time.Minute)
}

// IsDue reports whether the reminder should be delivered at instant now.
// Pure: no I/O, no side effects, deterministic for a given (event, r, now).
func IsDue(event *models.Event, r models.Reminder, now time.Time) bool {
	if !r.IsActive || r.SentAt != nil {
		return false
	}
	return !now.Before(DueAt(event, r))
}
