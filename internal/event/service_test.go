package event_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-studyplanner/internal/event"
	"ms-studyplanner/internal/logger"
	"ms-studyplanner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDB struct {
	mock.Mock
}

func (m *MockDB) CreateEvent(ctx context.Context, ev *models.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockDB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDB) UpdateEvent(ctx context.Context, ev *models.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockDB) DeleteEvent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDB) ListUpcomingEvents(ctx context.Context, userID string, now time.Time) ([]models.Event, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDB) AppendNotification(ctx context.Context, entry *models.NotificationEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDB) EventStats(ctx context.Context, userID string) (*models.EventStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EventStats), args.Error(1)
}

type MockKafkaPublisher struct {
	mock.Mock
}

func (m *MockKafkaPublisher) Publish(topic string, key string, value []byte) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

func setupEventService() (*event.Service, *MockDB, *MockKafkaPublisher) {
	db := &MockDB{}
	kafka := &MockKafkaPublisher{}
	svc := event.NewService(db, kafka, logger.NewLogger())
	svc.Clock = func() time.Time {
		return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	}
	return svc, db, kafka
}

func validCreateRequest() event.CreateEventRequest {
	return event.CreateEventRequest{
		Title:     "Algorithms exam",
		Type:      models.EventExam,
		StartDate: time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC),
		Reminders: []event.ReminderInput{
			{Type: models.ReminderNotification, MinutesBefore: 60},
			{MinutesBefore: 1440},
		},
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	svc, db, _ := setupEventService()
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*event.CreateEventRequest)
		field   string
	}{
		{"empty title", func(r *event.CreateEventRequest) { r.Title = "" }, "title"},
		{"missing start date", func(r *event.CreateEventRequest) { r.StartDate = time.Time{} }, "start_date"},
		{"end before start", func(r *event.CreateEventRequest) {
			end := r.StartDate.Add(-time.Hour)
			r.EndDate = &end
		}, "end_date"},
		{"unknown type", func(r *event.CreateEventRequest) { r.Type = "party" }, "type"},
		{"unknown priority", func(r *event.CreateEventRequest) { r.Priority = "whenever" }, "priority"},
		{"zero reminder lead", func(r *event.CreateEventRequest) { r.Reminders[0].MinutesBefore = 0 }, "reminders"},
		{"negative reminder lead", func(r *event.CreateEventRequest) { r.Reminders[0].MinutesBefore = -5 }, "reminders"},
		{"unknown reminder type", func(r *event.CreateEventRequest) { r.Reminders[0].Type = "carrier-pigeon" }, "reminders"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(&req)

			_, err := svc.CreateEvent(ctx, "user-1", req)

			var validation *models.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, tc.field, validation.Field)
		})
	}

	db.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
}

func TestCreateEvent_AppliesDefaults(t *testing.T) {
	svc, db, kafka := setupEventService()

	db.On("CreateEvent", mock.Anything, mock.Anything).Return(nil).Once()
	kafka.On("Publish", "studyplanner.event.created", mock.Anything, mock.Anything).Return(nil).Once()

	req := validCreateRequest()
	req.Type = ""
	req.Priority = ""

	created, err := svc.CreateEvent(context.Background(), "user-1", req)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, models.EventOther, created.Type)
	assert.Equal(t, models.PriorityMedium, created.Priority)
	assert.Equal(t, models.StatusUpcoming, created.Status)
	assert.Equal(t, models.TimerNotStarted, created.Timer.Status)

	require.Len(t, created.Reminders, 2)
	assert.Equal(t, 0, created.Reminders[0].Idx)
	assert.Equal(t, 1, created.Reminders[1].Idx)
	assert.Equal(t, created.ID, created.Reminders[0].EventID)
	assert.Equal(t, models.ReminderNotification, created.Reminders[1].Type, "reminder type defaults to notification")
	assert.True(t, created.Reminders[0].IsActive)
	assert.Nil(t, created.Reminders[0].SentAt)

	db.AssertExpectations(t)
	kafka.AssertExpectations(t)
}

func TestCreateEvent_PublishesToConfiguredTopic(t *testing.T) {
	svc, db, kafka := setupEventService()
	svc.TopicCreated = "planner.events.created"

	db.On("CreateEvent", mock.Anything, mock.Anything).Return(nil).Once()
	kafka.On("Publish", "planner.events.created", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.CreateEvent(context.Background(), "user-1", validCreateRequest())
	require.NoError(t, err)
	kafka.AssertExpectations(t)
}

func TestCreateEvent_KafkaFailureIsNotFatal(t *testing.T) {
	svc, db, kafka := setupEventService()

	db.On("CreateEvent", mock.Anything, mock.Anything).Return(nil).Once()
	kafka.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	created, err := svc.CreateEvent(context.Background(), "user-1", validCreateRequest())
	require.NoError(t, err, "the event is stored even when the stream publish fails")
	assert.NotNil(t, created)
}

func TestGetEvent_WrongOwnerLooksLikeMissing(t *testing.T) {
	svc, db, _ := setupEventService()

	db.On("GetEventByID", mock.Anything, "event-1").Return(&models.Event{
		ID:     "event-1",
		UserID: "someone-else",
	}, nil).Once()

	_, err := svc.GetEvent(context.Background(), "user-1", "event-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateEvent_StatusChangeIsLogged(t *testing.T) {
	svc, db, _ := setupEventService()

	stored := &models.Event{
		ID:        "event-1",
		UserID:    "user-1",
		Title:     "Algorithms exam",
		Type:      models.EventExam,
		StartDate: time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC),
		Priority:  models.PriorityHigh,
		Status:    models.StatusUpcoming,
	}
	db.On("GetEventByID", mock.Anything, "event-1").Return(stored, nil).Once()
	db.On("UpdateEvent", mock.Anything, mock.Anything).Return(nil).Once()
	db.On("AppendNotification", mock.Anything, mock.MatchedBy(func(entry *models.NotificationEntry) bool {
		return entry.EventID == "event-1" &&
			entry.Type == models.NotificationStatusChange &&
			entry.Message == "Algorithms exam is now completed"
	})).Return(nil).Once()

	status := models.StatusCompleted
	updated, err := svc.UpdateEvent(context.Background(), "user-1", "event-1", event.UpdateEventRequest{
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	db.AssertExpectations(t)
}

func TestUpdateEvent_NoStatusChangeNoLogEntry(t *testing.T) {
	svc, db, _ := setupEventService()

	stored := &models.Event{
		ID:        "event-1",
		UserID:    "user-1",
		Title:     "Algorithms exam",
		Type:      models.EventExam,
		StartDate: time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC),
		Priority:  models.PriorityHigh,
		Status:    models.StatusUpcoming,
	}
	db.On("GetEventByID", mock.Anything, "event-1").Return(stored, nil).Once()
	db.On("UpdateEvent", mock.Anything, mock.Anything).Return(nil).Once()

	title := "Algorithms final exam"
	_, err := svc.UpdateEvent(context.Background(), "user-1", "event-1", event.UpdateEventRequest{
		Title: &title,
	})
	require.NoError(t, err)
	db.AssertNotCalled(t, "AppendNotification", mock.Anything, mock.Anything)
}

func TestDeleteEvent_ChecksOwnerFirst(t *testing.T) {
	svc, db, _ := setupEventService()

	db.On("GetEventByID", mock.Anything, "event-1").Return(&models.Event{
		ID:     "event-1",
		UserID: "someone-else",
	}, nil).Once()

	err := svc.DeleteEvent(context.Background(), "user-1", "event-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	db.AssertNotCalled(t, "DeleteEvent", mock.Anything, mock.Anything)
}

func TestListUpcoming_UsesServiceClock(t *testing.T) {
	svc, db, _ := setupEventService()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	db.On("ListUpcomingEvents", mock.Anything, "user-1", now).Return([]models.Event{}, nil).Once()

	_, err := svc.ListUpcoming(context.Background(), "user-1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}
