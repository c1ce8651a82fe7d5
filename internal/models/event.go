package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventType string

const (
	EventExam       EventType = "exam"
	EventAssignment EventType = "assignment"
	EventProject    EventType = "project"
	EventHackathon  EventType = "hackathon"
	EventMeeting    EventType = "meeting"
	EventDeadline   EventType = "deadline"
	EventPersonal   EventType = "personal"
	EventOther      EventType = "other"
)

// ValidEventType reports whether t is one of the known event types.
func ValidEventType(t EventType) bool {
	switch t {
	case EventExam, EventAssignment, EventProject, EventHackathon,
		EventMeeting, EventDeadline, EventPersonal, EventOther:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type EventStatus string

const (
	StatusUpcoming   EventStatus = "upcoming"
	StatusInProgress EventStatus = "in-progress"
	StatusCompleted  EventStatus = "completed"
	StatusCancelled  EventStatus = "cancelled"
)

func ValidEventStatus(s EventStatus) bool {
	switch s {
	case StatusUpcoming, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type TimerStatus string

const (
	TimerNotStarted TimerStatus = "not-started"
	TimerRunning    TimerStatus = "running"
	TimerPaused     TimerStatus = "paused"
	TimerCompleted  TimerStatus = "completed"
)

// Timer is the stopwatch sub-state embedded in an Event. PausedMin holds the
// minutes banked so far; while the timer is running the live total is
// PausedMin plus the time since StartTime.
type Timer struct {
	IsEnabled   bool        `bun:"enabled" json:"is_enabled"`
	DurationMin int         `bun:"duration_min,nullzero" json:"duration,omitempty"`
	StartTime   *time.Time  `bun:"start_time,nullzero" json:"start_time,omitempty"`
	EndTime     *time.Time  `bun:"end_time,nullzero" json:"end_time,omitempty"`
	PausedMin   float64     `bun:"paused_min" json:"paused_time"`
	Status      TimerStatus `bun:"status" json:"status"`
}

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          string      `bun:"id,pk" json:"id"`
	UserID      string      `bun:"user_id,notnull" json:"user_id"`
	CourseID    string      `bun:"course_id,nullzero" json:"course_id,omitempty"`
	Title       string      `bun:"title,notnull" json:"title"`
	Description string      `bun:"description" json:"description,omitempty"`
	Type        EventType   `bun:"type,notnull" json:"type"`
	StartDate   time.Time   `bun:"start_date,notnull" json:"start_date"`
	EndDate     *time.Time  `bun:"end_date,nullzero" json:"end_date,omitempty"`
	Priority    Priority    `bun:"priority,notnull" json:"priority"`
	Status      EventStatus `bun:"status,notnull" json:"status"`
	IsAllDay    bool        `bun:"is_all_day" json:"is_all_day"`
	Location    string      `bun:"location" json:"location,omitempty"`
	Tags        []string    `bun:"tags,array" json:"tags,omitempty"`
	Timer       Timer       `bun:"embed:timer_" json:"timer"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull" json:"updated_at"`

	Reminders     []Reminder          `bun:"rel:has-many,join:id=event_id" json:"reminders,omitempty"`
	Notifications []NotificationEntry `bun:"rel:has-many,join:id=event_id" json:"notifications,omitempty"`
}

// EventStats is an aggregate view over a user's events.
type EventStats struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	ByType          map[string]int `json:"by_type"`
	TotalTrackedMin float64        `json:"total_tracked_minutes"`
}
