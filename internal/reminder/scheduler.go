package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/models"
)

// DefaultInterval is the wall-clock period between scans.
const DefaultInterval = 60 * time.Second

// ErrScanInFlight is returned by RunNow when another scan (scheduled or
// manual) has not finished yet.
var ErrScanInFlight = errors.New("reminder scan already in flight")

type SchedulerStore interface {
	DueCandidates(ctx context.Context, now time.Time) ([]models.Event, error)
	MarkReminderSent(ctx context.Context, eventID string, idx int, at time.Time) (bool, error)
	AppendNotification(ctx context.Context, entry *models.NotificationEntry) error
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

type Dispatcher interface {
	Dispatch(userID string, n models.LiveNotification)
}

// ScanLock serializes scans across service instances. Acquire returns false
// without error when another instance holds the lock.
type ScanLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler owns the recurring reminder scan. It is constructed with its
// collaborators injected and has an explicit Start/Stop lifecycle; at most
// one scan is in flight at any time, whether triggered by the ticker or by
// RunNow. Delivery state is marked with a conditional update keyed on the
// reminder being undelivered, so a lost race never double-fires.
type Scheduler struct {
	Store    SchedulerStore
	Kafka    KafkaPublisher
	Notify   Dispatcher
	Lock     ScanLock // optional cross-instance guard, may be nil
	Logger   *logger.Logger
	Interval time.Duration
	Clock    func() time.Time

	// TopicDelivered is the kafka topic delivered reminders are published to.
	TopicDelivered string

	scanning atomic.Bool
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(store SchedulerStore, kafka KafkaPublisher, notify Dispatcher, lock ScanLock, log *logger.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		Store:          store,
		Kafka:          kafka,
		Notify:         notify,
		Lock:           lock,
		Logger:         log,
		Interval:       interval,
		Clock:          time.Now,
		TopicDelivered: "studyplanner.reminder.delivered",
	}
}

// Start launches the background tick loop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.Logger.Info("SCHEDULER", fmt.Sprintf("Reminder scheduler started (interval %s)", s.Interval))
}

// Stop requests shutdown and waits for the loop to exit. No tick fires after
// Stop returns; a scan already in flight runs to completion first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.Logger.Info("SCHEDULER", "Reminder scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The scan runs on its own context: Stop halts future ticks but
			// delivery work already started finishes before the wait returns.
			delivered, err := s.Scan(context.Background())
			if err != nil && !errors.Is(err, ErrScanInFlight) {
				s.Logger.Error("SCHEDULER", fmt.Sprintf("Reminder scan failed: %v", err))
			}
			if delivered > 0 {
				s.Logger.Info("SCHEDULER", fmt.Sprintf("Delivered %d reminder(s)", delivered))
			}
		}
	}
}

// Scan runs one full reminder pass and returns how many reminders were
// delivered. It is the single delivery path for both the ticker and the
// manual trigger.
func (s *Scheduler) Scan(ctx context.Context) (int, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return 0, ErrScanInFlight
	}
	defer s.scanning.Store(false)

	if s.Lock != nil {
		ok, err := s.Lock.Acquire(ctx)
		if err != nil {
			return 0, fmt.Errorf("scan lock acquire failed: %w", err)
		}
		if !ok {
			s.Logger.Debug("SCHEDULER", "Scan lock held elsewhere, skipping this pass")
			return 0, nil
		}
		defer func() {
			if err := s.Lock.Release(ctx); err != nil {
				s.Logger.Warn("SCHEDULER", fmt.Sprintf("Scan lock release failed: %v", err))
			}
		}()
	}

	now := s.Clock()
	events, err := s.Store.DueCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to query due candidates: %w", err)
	}

	delivered := 0
	for i := range events {
		event := &events[i]
		for _, r := range event.Reminders {
			if !IsDue(event, r, now) {
				continue
			}
			if s.deliver(ctx, event, r, now) {
				delivered++
			}
		}
	}
	return delivered, nil
}

// RunNow is the operator hook: an immediate scan outside the regular tick,
// sharing the delivery path and the mutual-exclusion guarantee.
func (s *Scheduler) RunNow(ctx context.Context) (int, error) {
	return s.Scan(ctx)
}

// deliver marks one reminder sent and fans the notification out. A failure
// past the sent_at marking is logged and never rolled back: the durable log
// is best effort on top of the delivery state, and one bad reminder must not
// abort the rest of the scan.
func (s *Scheduler) deliver(ctx context.Context, event *models.Event, r models.Reminder, now time.Time) bool {
	won, err := s.Store.MarkReminderSent(ctx, event.ID, r.Idx, now)
	if err != nil {
		s.Logger.Error("SCHEDULER", fmt.Sprintf("Failed to mark reminder %s/%d sent: %v", event.ID, r.Idx, err))
		return false
	}
	if !won {
		// Another scan got there first.
		return false
	}

	message := fmt.Sprintf("%s starts in %d minutes", event.Title, r.MinutesBefore)

	entry := &models.NotificationEntry{
		EventID: event.ID,
		Message: message,
		Type:    models.NotificationReminder,
		SentAt:  now,
	}
	if err := s.Store.AppendNotification(ctx, entry); err != nil {
		s.Logger.Error("DELIVERY", fmt.Sprintf("Failed to append reminder notification for %s/%d: %v", event.ID, r.Idx, err))
	}

	payload := struct {
		EventID       string    `json:"event_id"`
		UserID        string    `json:"user_id"`
		ReminderIdx   int       `json:"reminder_idx"`
		MinutesBefore int       `json:"time_before_event"`
		SentAt        time.Time `json:"sent_at"`
	}{event.ID, event.UserID, r.Idx, r.MinutesBefore, now}
	if value, err := json.Marshal(payload); err == nil {
		if err := s.Kafka.Publish(s.TopicDelivered, event.ID, value); err != nil {
			s.Logger.Error("DELIVERY", fmt.Sprintf("Publish error (reminder delivered) for %s/%d: %v", event.ID, r.Idx, err))
		}
	}

	s.Notify.Dispatch(event.UserID, models.LiveNotification{
		Title:   event.Title,
		Message: message,
		Kind:    "reminder",
		Action:  "/events/" + event.ID,
	})

	return true
}
