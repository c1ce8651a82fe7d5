package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/models"
)

type DBLayer interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	UpdateTimer(ctx context.Context, event *models.Event) error
	AppendNotification(ctx context.Context, entry *models.NotificationEntry) error
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

type Dispatcher interface {
	Dispatch(userID string, n models.LiveNotification)
}

// Service runs the per-event timer state machine:
// not-started → running ⇄ paused → completed.
type Service struct {
	DB     DBLayer
	Kafka  KafkaPublisher
	Notify Dispatcher
	Logger *logger.Logger
	Clock  func() time.Time

	// Kafka topics for timer lifecycle events.
	TopicStarted   string
	TopicCompleted string
}

func NewService(db DBLayer, kafka KafkaPublisher, notify Dispatcher, log *logger.Logger) *Service {
	return &Service{
		DB:             db,
		Kafka:          kafka,
		Notify:         notify,
		Logger:         log,
		Clock:          time.Now,
		TopicStarted:   "studyplanner.timer.started",
		TopicCompleted: "studyplanner.timer.completed",
	}
}

// State is the live timer view returned by Status. ElapsedMin includes the
// running segment, computed on read without persisting anything.
type State struct {
	IsEnabled   bool               `json:"is_enabled"`
	Status      models.TimerStatus `json:"status"`
	ElapsedMin  float64            `json:"elapsed_minutes"`
	DurationMin int                `json:"duration,omitempty"`
	StartTime   *time.Time         `json:"start_time,omitempty"`
	EndTime     *time.Time         `json:"end_time,omitempty"`
}

func (s *Service) loadOwned(ctx context.Context, userID, eventID string) (*models.Event, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.UserID != userID {
		return nil, models.ErrNotFound
	}
	return event, nil
}

// Start begins (or restarts) the timer. The only precondition is that the
// timer is enabled for the event; starting again from paused or completed is
// allowed and simply opens a new running segment on top of the banked minutes.
func (s *Service) Start(ctx context.Context, userID, eventID string) (*models.Event, error) {
	event, err := s.loadOwned(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if !event.Timer.IsEnabled {
		return nil, &models.InvalidTransitionError{Op: "start", Status: event.Timer.Status, Reason: "timer is not enabled for this event"}
	}

	now := s.Clock()
	event.Timer.Status = models.TimerRunning
	event.Timer.StartTime = &now
	event.UpdatedAt = now

	if err := s.DB.UpdateTimer(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to start timer for event %s: %w", eventID, err)
	}

	s.appendLog(ctx, event, models.NotificationTimerStart,
		fmt.Sprintf("Timer started for %s", event.Title), now)
	s.publish(s.TopicStarted, event)
	s.Notify.Dispatch(event.UserID, models.LiveNotification{
		Title:   event.Title,
		Message: "Timer started",
		Kind:    "timer-start",
		Action:  "/events/" + event.ID,
	})

	return event, nil
}

// Pause banks the elapsed minutes of the current running segment. No log
// entry is written for pause.
func (s *Service) Pause(ctx context.Context, userID, eventID string) (*models.Event, error) {
	event, err := s.loadOwned(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.Timer.Status != models.TimerRunning {
		return nil, &models.InvalidTransitionError{Op: "pause", Status: event.Timer.Status}
	}

	now := s.Clock()
	event.Timer.PausedMin += s.elapsedMinutes(event, now)
	event.Timer.Status = models.TimerPaused
	event.UpdatedAt = now

	if err := s.DB.UpdateTimer(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to pause timer for event %s: %w", eventID, err)
	}
	return event, nil
}

// Resume reopens a running segment. The banked minutes are kept; only the
// segment start is reset.
func (s *Service) Resume(ctx context.Context, userID, eventID string) (*models.Event, error) {
	event, err := s.loadOwned(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.Timer.Status != models.TimerPaused {
		return nil, &models.InvalidTransitionError{Op: "resume", Status: event.Timer.Status}
	}

	now := s.Clock()
	event.Timer.Status = models.TimerRunning
	event.Timer.StartTime = &now
	event.UpdatedAt = now

	if err := s.DB.UpdateTimer(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to resume timer for event %s: %w", eventID, err)
	}
	return event, nil
}

// Stop completes the timer from running or paused. A running segment is
// banked first, so the total survives any pause/resume history.
func (s *Service) Stop(ctx context.Context, userID, eventID string) (*models.Event, error) {
	event, err := s.loadOwned(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.Timer.Status != models.TimerRunning && event.Timer.Status != models.TimerPaused {
		return nil, &models.InvalidTransitionError{Op: "stop", Status: event.Timer.Status}
	}

	now := s.Clock()
	if event.Timer.Status == models.TimerRunning {
		event.Timer.PausedMin += s.elapsedMinutes(event, now)
	}
	event.Timer.Status = models.TimerCompleted
	event.Timer.EndTime = &now
	event.UpdatedAt = now

	if err := s.DB.UpdateTimer(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to stop timer for event %s: %w", eventID, err)
	}

	s.appendLog(ctx, event, models.NotificationTimerEnd,
		fmt.Sprintf("Timer completed for %s: %.1f minutes tracked", event.Title, event.Timer.PausedMin), now)
	s.publish(s.TopicCompleted, event)
	s.Notify.Dispatch(event.UserID, models.LiveNotification{
		Title:   event.Title,
		Message: fmt.Sprintf("Timer completed: %.1f minutes tracked", event.Timer.PausedMin),
		Kind:    "timer-end",
		Action:  "/events/" + event.ID,
	})

	return event, nil
}

// Status reads the live timer state. For a running timer the elapsed total is
// computed against the clock; nothing is written back.
func (s *Service) Status(ctx context.Context, userID, eventID string) (*State, error) {
	event, err := s.loadOwned(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	elapsed := event.Timer.PausedMin
	if event.Timer.Status == models.TimerRunning {
		elapsed += s.elapsedMinutes(event, s.Clock())
	}

	return &State{
		IsEnabled:   event.Timer.IsEnabled,
		Status:      event.Timer.Status,
		ElapsedMin:  elapsed,
		DurationMin: event.Timer.DurationMin,
		StartTime:   event.Timer.StartTime,
		EndTime:     event.Timer.EndTime,
	}, nil
}

func (s *Service) elapsedMinutes(event *models.Event, now time.Time) float64 {
	if event.Timer.StartTime == nil {
		return 0
	}
	return now.Sub(*event.Timer.StartTime).Minutes()
}

func (s *Service) appendLog(ctx context.Context, event *models.Event, typ models.NotificationType, message string, at time.Time) {
	entry := &models.NotificationEntry{
		EventID: event.ID,
		Message: message,
		Type:    typ,
		SentAt:  at,
	}
	if err := s.DB.AppendNotification(ctx, entry); err != nil {
		s.Logger.Warn("TIMER", fmt.Sprintf("Failed to append %s notification for event %s: %v", typ, event.ID, err))
	}
}

func (s *Service) publish(topic string, event *models.Event) {
	payload := struct {
		EventID   string             `json:"event_id"`
		UserID    string             `json:"user_id"`
		Status    models.TimerStatus `json:"status"`
		PausedMin float64            `json:"paused_minutes"`
	}{event.ID, event.UserID, event.Timer.Status, event.Timer.PausedMin}

	value, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.Kafka.Publish(topic, event.ID, value); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Publish error (%s): %v", topic, err))
	}
}
