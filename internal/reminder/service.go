package reminder

import (
	"context"
	"fmt"
	"time"

	"ms-studyplanner/internal/models"
)

const defaultUpcomingLimit = 20

type DBLayer interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	AddReminder(ctx context.Context, reminder *models.Reminder) error
	UpcomingReminders(ctx context.Context, userID string, now time.Time, limit int) ([]models.UpcomingReminder, error)
}

// Service is the reminder read/write API used by the HTTP layer. Delivery is
// the Scheduler's job; this type only manages and lists reminders.
type Service struct {
	DB    DBLayer
	Clock func() time.Time
}

func NewService(db DBLayer) *Service {
	return &Service{DB: db, Clock: time.Now}
}

// AddReminder appends a reminder to an existing event owned by userID.
func (s *Service) AddReminder(ctx context.Context, userID, eventID string, typ models.ReminderType, minutesBefore int) (*models.Reminder, error) {
	if minutesBefore <= 0 {
		return nil, &models.ValidationError{Field: "time_before_event", Reason: "must be a positive number of minutes"}
	}
	if typ == "" {
		typ = models.ReminderNotification
	}
	if !models.ValidReminderType(typ) {
		return nil, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown reminder type %q", typ)}
	}

	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.UserID != userID {
		return nil, models.ErrNotFound
	}

	reminder := &models.Reminder{
		EventID:       eventID,
		Type:          typ,
		MinutesBefore: minutesBefore,
		IsActive:      true,
	}
	if err := s.DB.AddReminder(ctx, reminder); err != nil {
		return nil, fmt.Errorf("failed to add reminder to event %s: %w", eventID, err)
	}
	return reminder, nil
}

// GetUpcomingReminders lists the user's pending reminders ordered by due
// time; delivered reminders are always excluded.
func (s *Service) GetUpcomingReminders(ctx context.Context, userID string, limit int) ([]models.UpcomingReminder, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	return s.DB.UpcomingReminders(ctx, userID, s.Clock(), limit)
}
