package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReminderType string

const (
	ReminderEmail        ReminderType = "email"
	ReminderPush         ReminderType = "push"
	ReminderNotification ReminderType = "notification"
)

func ValidReminderType(t ReminderType) bool {
	switch t {
	case ReminderEmail, ReminderPush, ReminderNotification:
		return true
	}
	return false
}

// Reminder is a lead-time notice attached to an Event, identified by its
// position within the event's reminder list. SentAt is nil until the reminder
// is delivered; once set it is never cleared.
type Reminder struct {
	bun.BaseModel `bun:"table:reminders,alias:r"`

	EventID       string       `bun:"event_id,pk" json:"event_id"`
	Idx           int          `bun:"idx,pk" json:"idx"`
	Type          ReminderType `bun:"type,notnull" json:"type"`
	MinutesBefore int          `bun:"minutes_before,notnull" json:"time_before_event"`
	IsActive      bool         `bun:"is_active" json:"is_active"`
	SentAt        *time.Time   `bun:"sent_at,nullzero" json:"sent_at,omitempty"`
}

// UpcomingReminder is a row of the upcoming-reminder read API: a pending
// reminder joined with the event fields needed to present it.
type UpcomingReminder struct {
	EventID       string       `json:"event_id"`
	EventTitle    string       `json:"event_title"`
	StartDate     time.Time    `json:"start_date"`
	Idx           int          `json:"idx"`
	Type          ReminderType `json:"type"`
	MinutesBefore int          `json:"time_before_event"`
	DueAt         time.Time    `json:"due_at"`
}
