package timer_test

import (
	"context"
	"testing"
	"time"

	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/models"
	"ms-studyplanner/internal/timer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps one event in memory so a sequence of timer commands sees
// its own earlier writes, the way the real store would.
type fakeStore struct {
	event         *models.Event
	updates       int
	notifications []models.NotificationEntry
}

func (f *fakeStore) GetEventByID(_ context.Context, id string) (*models.Event, error) {
	if f.event == nil || f.event.ID != id {
		return nil, models.ErrNotFound
	}
	copied := *f.event
	return &copied, nil
}

func (f *fakeStore) UpdateTimer(_ context.Context, event *models.Event) error {
	copied := *event
	f.event = &copied
	f.updates++
	return nil
}

func (f *fakeStore) AppendNotification(_ context.Context, entry *models.NotificationEntry) error {
	f.notifications = append(f.notifications, *entry)
	return nil
}

type MockKafkaPublisher struct {
	mock.Mock
}

func (m *MockKafkaPublisher) Publish(topic string, key string, value []byte) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(userID string, n models.LiveNotification) {
	m.Called(userID, n)
}

func newTimerEvent(enabled bool) *models.Event {
	return &models.Event{
		ID:        "event-1",
		UserID:    "user-1",
		Title:     "Deep work session",
		Type:      models.EventPersonal,
		StartDate: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Status:    models.StatusUpcoming,
		Timer: models.Timer{
			IsEnabled: enabled,
			Status:    models.TimerNotStarted,
		},
	}
}

func setupService(event *models.Event) (*timer.Service, *fakeStore, *MockKafkaPublisher, *MockDispatcher, *time.Time) {
	store := &fakeStore{event: event}
	kafka := &MockKafkaPublisher{}
	kafka.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dispatcher := &MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return()

	current := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := timer.NewService(store, kafka, dispatcher, logger.NewLogger())
	svc.Clock = func() time.Time { return current }

	return svc, store, kafka, dispatcher, &current
}

func TestStart_RequiresEnabledTimer(t *testing.T) {
	svc, store, _, _, _ := setupService(newTimerEvent(false))

	_, err := svc.Start(context.Background(), "user-1", "event-1")

	var transition *models.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "start", transition.Op)
	assert.Zero(t, store.updates, "failed start must not write")
}

func TestStart_SetsRunningAndLogsNotification(t *testing.T) {
	svc, store, _, dispatcher, clock := setupService(newTimerEvent(true))

	event, err := svc.Start(context.Background(), "user-1", "event-1")
	require.NoError(t, err)

	assert.Equal(t, models.TimerRunning, event.Timer.Status)
	require.NotNil(t, event.Timer.StartTime)
	assert.Equal(t, *clock, *event.Timer.StartTime)

	require.Len(t, store.notifications, 1)
	assert.Equal(t, models.NotificationTimerStart, store.notifications[0].Type)
	dispatcher.AssertCalled(t, "Dispatch", "user-1", mock.Anything)
}

func TestPause_RequiresRunning(t *testing.T) {
	svc, _, _, _, clock := setupService(newTimerEvent(true))
	ctx := context.Background()

	_, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)

	*clock = clock.Add(10 * time.Minute)
	_, err = svc.Pause(ctx, "user-1", "event-1")
	require.NoError(t, err)

	// Second pause without an intervening resume must fail.
	_, err = svc.Pause(ctx, "user-1", "event-1")
	var transition *models.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "pause", transition.Op)
	assert.Equal(t, models.TimerPaused, transition.Status)
}

func TestPauseResumeStop_AccumulatesElapsedMinutes(t *testing.T) {
	svc, store, _, _, clock := setupService(newTimerEvent(true))
	ctx := context.Background()
	t0 := *clock

	_, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)

	*clock = t0.Add(10 * time.Minute)
	event, err := svc.Pause(ctx, "user-1", "event-1")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, event.Timer.PausedMin, 0.01)

	*clock = t0.Add(15 * time.Minute)
	event, err = svc.Resume(ctx, "user-1", "event-1")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, event.Timer.PausedMin, 0.01, "resume keeps the banked minutes")

	*clock = t0.Add(20 * time.Minute)
	event, err = svc.Stop(ctx, "user-1", "event-1")
	require.NoError(t, err)

	assert.Equal(t, models.TimerCompleted, event.Timer.Status)
	assert.InDelta(t, 15.0, event.Timer.PausedMin, 0.01)
	require.NotNil(t, event.Timer.EndTime)
	assert.Equal(t, *clock, *event.Timer.EndTime)

	require.Len(t, store.notifications, 2, "start and stop log, pause and resume do not")
	assert.Equal(t, models.NotificationTimerEnd, store.notifications[1].Type)
}

func TestStartThenStop_TracksWallClock(t *testing.T) {
	svc, _, _, _, clock := setupService(newTimerEvent(true))
	ctx := context.Background()

	_, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)

	*clock = clock.Add(42 * time.Minute)
	event, err := svc.Stop(ctx, "user-1", "event-1")
	require.NoError(t, err)

	assert.Equal(t, models.TimerCompleted, event.Timer.Status)
	assert.InDelta(t, 42.0, event.Timer.PausedMin, 0.01)
}

func TestPausedMinutes_NeverDecrease(t *testing.T) {
	svc, _, _, _, clock := setupService(newTimerEvent(true))
	ctx := context.Background()

	var last float64
	_, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		*clock = clock.Add(3 * time.Minute)
		event, err := svc.Pause(ctx, "user-1", "event-1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, event.Timer.PausedMin, last)
		last = event.Timer.PausedMin

		*clock = clock.Add(time.Minute)
		_, err = svc.Resume(ctx, "user-1", "event-1")
		require.NoError(t, err)
	}

	*clock = clock.Add(2 * time.Minute)
	event, err := svc.Stop(ctx, "user-1", "event-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, event.Timer.PausedMin, last)
}

func TestStop_RequiresRunningOrPaused(t *testing.T) {
	svc, _, _, _, _ := setupService(newTimerEvent(true))

	_, err := svc.Stop(context.Background(), "user-1", "event-1")
	var transition *models.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "stop", transition.Op)
	assert.Equal(t, models.TimerNotStarted, transition.Status)
}

func TestResume_RequiresPaused(t *testing.T) {
	svc, _, _, _, _ := setupService(newTimerEvent(true))

	_, err := svc.Resume(context.Background(), "user-1", "event-1")
	var transition *models.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "resume", transition.Op)
}

func TestStart_FromPausedReopensSegment(t *testing.T) {
	// Start checks only that the timer is enabled, so restarting from paused
	// is allowed; the banked minutes are kept.
	svc, _, _, _, clock := setupService(newTimerEvent(true))
	ctx := context.Background()

	_, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)

	*clock = clock.Add(5 * time.Minute)
	_, err = svc.Pause(ctx, "user-1", "event-1")
	require.NoError(t, err)

	*clock = clock.Add(5 * time.Minute)
	event, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimerRunning, event.Timer.Status)
	assert.InDelta(t, 5.0, event.Timer.PausedMin, 0.01)
}

func TestTimerLifecycle_PublishesToConfiguredTopics(t *testing.T) {
	svc, _, kafka, _, clock := setupService(newTimerEvent(true))
	svc.TopicStarted = "planner.timer.begin"
	svc.TopicCompleted = "planner.timer.done"
	ctx := context.Background()

	_, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)

	*clock = clock.Add(30 * time.Minute)
	_, err = svc.Stop(ctx, "user-1", "event-1")
	require.NoError(t, err)

	kafka.AssertCalled(t, "Publish", "planner.timer.begin", "event-1", mock.Anything)
	kafka.AssertCalled(t, "Publish", "planner.timer.done", "event-1", mock.Anything)
}

func TestStatus_ComputesLiveElapsedWithoutWrites(t *testing.T) {
	svc, store, _, _, clock := setupService(newTimerEvent(true))
	ctx := context.Background()

	_, err := svc.Start(ctx, "user-1", "event-1")
	require.NoError(t, err)
	writesAfterStart := store.updates

	*clock = clock.Add(7 * time.Minute)
	state, err := svc.Status(ctx, "user-1", "event-1")
	require.NoError(t, err)

	assert.Equal(t, models.TimerRunning, state.Status)
	assert.InDelta(t, 7.0, state.ElapsedMin, 0.01)
	assert.Equal(t, writesAfterStart, store.updates, "status read must not persist anything")
}

func TestTimerCommands_UnknownEventOrWrongOwner(t *testing.T) {
	svc, _, _, _, _ := setupService(newTimerEvent(true))
	ctx := context.Background()

	_, err := svc.Start(ctx, "user-1", "missing-event")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.Start(ctx, "someone-else", "event-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
