package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-studyplanner/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- EVENTS ----------------

// CreateEvent → insert a new event together with its reminders
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(event).Exec(ctx); err != nil {
			return err
		}
		if len(event.Reminders) > 0 {
			if _, err := tx.NewInsert().Model(&event.Reminders).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEventByID → fetch one event with its reminders and notification log
func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Relation("Reminders", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("idx ASC")
		}).
		Relation("Notifications", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("sent_at ASC").Order("id ASC")
		}).
		Where("e.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEvent → update the editable event fields
func (d *DB) UpdateEvent(ctx context.Context, event *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		Column("title", "description", "type", "start_date", "end_date",
			"priority", "status", "is_all_day", "location", "tags", "updated_at").
		Where("id = ?", event.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateTimer → persist only the embedded timer columns
func (d *DB) UpdateTimer(ctx context.Context, event *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		Column("timer_enabled", "timer_duration_min", "timer_start_time",
			"timer_end_time", "timer_paused_min", "timer_status", "updated_at").
		Where("id = ?", event.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteEvent → remove an event and everything embedded in it
func (d *DB) DeleteEvent(ctx context.Context, id string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.Reminder)(nil)).
			Where("event_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.NotificationEntry)(nil)).
			Where("event_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*models.Event)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// ListUpcomingEvents → a user's upcoming events ordered by start date
func (d *DB) ListUpcomingEvents(ctx context.Context, userID string, now time.Time) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Relation("Reminders", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("idx ASC")
		}).
		Where("e.user_id = ?", userID).
		Where("e.status = ?", models.StatusUpcoming).
		Where("e.start_date >= ?", now).
		Order("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ---------------- SCHEDULER QUERIES ----------------

// DueCandidates → events the reminder scan should look at: still upcoming,
// not yet started, and carrying at least one active undelivered reminder.
func (d *DB) DueCandidates(ctx context.Context, now time.Time) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Relation("Reminders", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("idx ASC")
		}).
		Where("e.status = ?", models.StatusUpcoming).
		Where("e.start_date >= ?", now).
		Where("EXISTS (SELECT 1 FROM reminders AS r WHERE r.event_id = e.id AND r.is_active AND r.sent_at IS NULL)").
		Order("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// MarkReminderSent → set sent_at only if it is still unset. Returns true when
// this caller won the update, false when some other scan delivered first.
func (d *DB) MarkReminderSent(ctx context.Context, eventID string, idx int, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Reminder)(nil)).
		Set("sent_at = ?", at).
		Where("event_id = ?", eventID).
		Where("idx = ?", idx).
		Where("sent_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// AppendNotification → append to the event's durable notification log
func (d *DB) AppendNotification(ctx context.Context, entry *models.NotificationEntry) error {
	_, err := d.Bun.NewInsert().Model(entry).Exec(ctx)
	return err
}

// ---------------- REMINDERS ----------------

// AddReminder → append a reminder to an event, assigning the next index
func (d *DB) AddReminder(ctx context.Context, reminder *models.Reminder) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var next int
		err := tx.NewSelect().
			Model((*models.Reminder)(nil)).
			ColumnExpr("COALESCE(MAX(idx) + 1, 0)").
			Where("event_id = ?", reminder.EventID).
			Scan(ctx, &next)
		if err != nil {
			return fmt.Errorf("failed to compute reminder index: %w", err)
		}
		reminder.Idx = next
		_, err = tx.NewInsert().Model(reminder).Exec(ctx)
		return err
	})
}

type pendingReminderRow struct {
	bun.BaseModel `bun:"table:reminders,alias:r"`

	models.Reminder
	EventTitle string    `bun:"event_title"`
	StartDate  time.Time `bun:"event_start_date"`
}

// UpcomingReminders → the user's active, undelivered reminders whose computed
// due time is still in the future, ordered ascending by due time with
// (event_id, idx) breaking ties. The due-time filter and sort happen here in
// Go so the same query runs on Postgres and on the SQLite test database.
func (d *DB) UpcomingReminders(ctx context.Context, userID string, now time.Time, limit int) ([]models.UpcomingReminder, error) {
	var rows []pendingReminderRow
	err := d.Bun.NewSelect().
		Model(&rows).
		ColumnExpr("r.*").
		ColumnExpr("e.title AS event_title").
		ColumnExpr("e.start_date AS event_start_date").
		Join("JOIN events AS e ON e.id = r.event_id").
		Where("e.user_id = ?", userID).
		Where("e.status = ?", models.StatusUpcoming).
		Where("e.start_date > ?", now).
		Where("r.is_active").
		Where("r.sent_at IS NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	upcoming := make([]models.UpcomingReminder, 0, len(rows))
	for _, row := range rows {
		due := row.StartDate.Add(-time.Duration(row.MinutesBefore) * time.Minute)
		if !due.After(now) {
			continue
		}
		upcoming = append(upcoming, models.UpcomingReminder{
			EventID:       row.EventID,
			EventTitle:    row.EventTitle,
			StartDate:     row.StartDate,
			Idx:           row.Idx,
			Type:          row.Type,
			MinutesBefore: row.MinutesBefore,
			DueAt:         due,
		})
	}

	sort.Slice(upcoming, func(i, j int) bool {
		if !upcoming[i].DueAt.Equal(upcoming[j].DueAt) {
			return upcoming[i].DueAt.Before(upcoming[j].DueAt)
		}
		if upcoming[i].EventID != upcoming[j].EventID {
			return upcoming[i].EventID < upcoming[j].EventID
		}
		return upcoming[i].Idx < upcoming[j].Idx
	})

	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming, nil
}

// ---------------- AGGREGATES ----------------

// EventStats → aggregate counts for a user's events plus total tracked minutes
func (d *DB) EventStats(ctx context.Context, userID string) (*models.EventStats, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Column("status", "type", "timer_paused_min").
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.EventStats{
		Total:    len(events),
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}
	for _, ev := range events {
		stats.ByStatus[string(ev.Status)]++
		stats.ByType[string(ev.Type)]++
		stats.TotalTrackedMin += ev.Timer.PausedMin
	}
	return stats, nil
}
