package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListUpcomingEvents(ctx context.Context, userID string, now time.Time) ([]models.Event, error)
	AppendNotification(ctx context.Context, entry *models.NotificationEntry) error
	EventStats(ctx context.Context, userID string) (*models.EventStats, error)
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

type Service struct {
	DB     DBLayer
	Kafka  KafkaPublisher
	Logger *logger.Logger
	Clock  func() time.Time

	// TopicCreated is the kafka topic new events are published to.
	TopicCreated string
}

func NewService(db DBLayer, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{
		DB:           db,
		Kafka:        kafka,
		Logger:       log,
		Clock:        time.Now,
		TopicCreated: "studyplanner.event.created",
	}
}

type ReminderInput struct {
	Type          models.ReminderType `json:"type"`
	MinutesBefore int                 `json:"time_before_event"`
}

type CreateEventRequest struct {
	CourseID      string             `json:"course_id,omitempty"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	Type          models.EventType   `json:"type"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       *time.Time         `json:"end_date,omitempty"`
	Priority      models.Priority    `json:"priority,omitempty"`
	IsAllDay      bool               `json:"is_all_day"`
	Location      string             `json:"location,omitempty"`
	Tags          []string           `json:"tags,omitempty"`
	Reminders     []ReminderInput    `json:"reminders,omitempty"`
	TimerEnabled  bool               `json:"timer_enabled"`
	TimerDuration int                `json:"timer_duration,omitempty"`
}

type UpdateEventRequest struct {
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	Type        *models.EventType   `json:"type,omitempty"`
	StartDate   *time.Time          `json:"start_date,omitempty"`
	EndDate     *time.Time          `json:"end_date,omitempty"`
	Priority    *models.Priority    `json:"priority,omitempty"`
	Status      *models.EventStatus `json:"status,omitempty"`
	IsAllDay    *bool               `json:"is_all_day,omitempty"`
	Location    *string             `json:"location,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
}

func (s *Service) CreateEvent(ctx context.Context, userID string, req CreateEventRequest) (*models.Event, error) {
	if req.Title == "" {
		return nil, &models.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if req.StartDate.IsZero() {
		return nil, &models.ValidationError{Field: "start_date", Reason: "is required"}
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return nil, &models.ValidationError{Field: "end_date", Reason: "must be after start_date"}
	}
	if req.Type == "" {
		req.Type = models.EventOther
	}
	if !models.ValidEventType(req.Type) {
		return nil, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", req.Type)}
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !models.ValidPriority(req.Priority) {
		return nil, &models.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", req.Priority)}
	}

	now := s.Clock()
	event := &models.Event{
		ID:          uuid.NewString(),
		UserID:      userID,
		CourseID:    req.CourseID,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Priority:    req.Priority,
		Status:      models.StatusUpcoming,
		IsAllDay:    req.IsAllDay,
		Location:    req.Location,
		Tags:        req.Tags,
		Timer: models.Timer{
			IsEnabled:   req.TimerEnabled,
			DurationMin: req.TimerDuration,
			Status:      models.TimerNotStarted,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for i, in := range req.Reminders {
		if in.MinutesBefore <= 0 {
			return nil, &models.ValidationError{Field: "reminders", Reason: "time_before_event must be a positive number of minutes"}
		}
		typ := in.Type
		if typ == "" {
			typ = models.ReminderNotification
		}
		if !models.ValidReminderType(typ) {
			return nil, &models.ValidationError{Field: "reminders", Reason: fmt.Sprintf("unknown reminder type %q", typ)}
		}
		event.Reminders = append(event.Reminders, models.Reminder{
			EventID:       event.ID,
			Idx:           i,
			Type:          typ,
			MinutesBefore: in.MinutesBefore,
			IsActive:      true,
		})
	}

	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	if value, err := json.Marshal(event); err == nil {
		if err := s.Kafka.Publish(s.TopicCreated, event.ID, value); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Publish error (event created): %v", err))
		}
	}

	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, userID, eventID string) (*models.Event, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.UserID != userID {
		return nil, models.ErrNotFound
	}
	return event, nil
}

func (s *Service) UpdateEvent(ctx context.Context, userID, eventID string, req UpdateEventRequest) (*models.Event, error) {
	event, err := s.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	prevStatus := event.Status

	if req.Title != nil {
		if *req.Title == "" {
			return nil, &models.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		event.Title = *req.Title
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Type != nil {
		if !models.ValidEventType(*req.Type) {
			return nil, &models.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", *req.Type)}
		}
		event.Type = *req.Type
	}
	if req.StartDate != nil {
		event.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		event.EndDate = req.EndDate
	}
	if event.EndDate != nil && !event.EndDate.After(event.StartDate) {
		return nil, &models.ValidationError{Field: "end_date", Reason: "must be after start_date"}
	}
	if req.Priority != nil {
		if !models.ValidPriority(*req.Priority) {
			return nil, &models.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *req.Priority)}
		}
		event.Priority = *req.Priority
	}
	if req.Status != nil {
		if !models.ValidEventStatus(*req.Status) {
			return nil, &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *req.Status)}
		}
		event.Status = *req.Status
	}
	if req.IsAllDay != nil {
		event.IsAllDay = *req.IsAllDay
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Tags != nil {
		event.Tags = req.Tags
	}
	event.UpdatedAt = s.Clock()

	if err := s.DB.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update event %s: %w", eventID, err)
	}

	if event.Status != prevStatus {
		entry := &models.NotificationEntry{
			EventID: event.ID,
			Message: fmt.Sprintf("%s is now %s", event.Title, event.Status),
			Type:    models.NotificationStatusChange,
			SentAt:  s.Clock(),
		}
		if err := s.DB.AppendNotification(ctx, entry); err != nil {
			s.Logger.Warn("EVENT", fmt.Sprintf("Failed to append status-change notification for %s: %v", event.ID, err))
		}
	}

	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, userID, eventID string) error {
	if _, err := s.GetEvent(ctx, userID, eventID); err != nil {
		return err
	}
	if err := s.DB.DeleteEvent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}
	return nil
}

func (s *Service) ListUpcoming(ctx context.Context, userID string) ([]models.Event, error) {
	return s.DB.ListUpcomingEvents(ctx, userID, s.Clock())
}

func (s *Service) Stats(ctx context.Context, userID string) (*models.EventStats, error) {
	return s.DB.EventStats(ctx, userID)
}
