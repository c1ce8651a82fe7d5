package models

import (
	"time"

	"github.com/uptrace/bun"
)

type NotificationType string

const (
	NotificationReminder     NotificationType = "reminder"
	NotificationTimerStart   NotificationType = "timer-start"
	NotificationTimerEnd     NotificationType = "timer-end"
	NotificationStatusChange NotificationType = "status-change"
)

// NotificationEntry is the durable, append-only notification log kept per
// event. It is the system of record; live pushes are best-effort on top.
type NotificationEntry struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID      int64            `bun:"id,pk,autoincrement" json:"id"`
	EventID string           `bun:"event_id,notnull" json:"event_id"`
	Message string           `bun:"message,notnull" json:"message"`
	Type    NotificationType `bun:"type,notnull" json:"type"`
	SentAt  time.Time        `bun:"sent_at,notnull" json:"sent_at"`
	IsRead  bool             `bun:"is_read" json:"is_read"`
}

// LiveNotification is the transient message pushed to a user's open
// connections. It is never persisted.
type LiveNotification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Action  string `json:"action,omitempty"`
}
