package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const untitled = "(No title)"

// Event is a single calendar entry instance.
type Event struct {
	ID     int64     `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"allDay"`
}

// Source reads events for a time window.
type Source interface {
	TodaysEvents(ctx context.Context, now time.Time) ([]Event, error)
	UpcomingEvents(ctx context.Context, now time.Time, days int) ([]Event, error)
}

// SQLiteSource reads an events table from a SQLite calendar export:
//
//	events(id INTEGER, title TEXT NULL, begin_ms INTEGER, end_ms INTEGER, all_day INTEGER)
//
// Times are Unix milliseconds. The database is opened read-only.
type SQLiteSource struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteSource opens the calendar database at path.
func NewSQLiteSource(path string, logger *zap.Logger) (*SQLiteSource, error) {
	logger = logger.Named("calendar")

	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open calendar database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("Calendar database opened", zap.String("path", path))
	return &SQLiteSource{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// TodaysEvents returns the events overlapping the local day of now.
func (s *SQLiteSource) TodaysEvents(ctx context.Context, now time.Time) ([]Event, error) {
	start := startOfDay(now)
	return s.query(ctx, start, start.AddDate(0, 0, 1))
}

// UpcomingEvents returns the events of the days days after today.
func (s *SQLiteSource) UpcomingEvents(ctx context.Context, now time.Time, days int) ([]Event, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be greater than zero")
	}
	start := startOfDay(now).AddDate(0, 0, 1)
	return s.query(ctx, start, start.AddDate(0, 0, days))
}

func (s *SQLiteSource) query(ctx context.Context, from, to time.Time) ([]Event, error) {
	fromMs, toMs := from.UnixMilli(), to.UnixMilli()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, begin_ms, end_ms, all_day
		FROM events
		WHERE begin_ms < ? AND (end_ms > ? OR begin_ms >= ?)
		ORDER BY begin_ms ASC, id ASC`,
		toMs, fromMs, fromMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	loc := from.Location()
	events := []Event{}
	for rows.Next() {
		var (
			e        Event
			title    sql.NullString
			begin    int64
			end      int64
			allDayFl int64
		)
		if err := rows.Scan(&e.ID, &title, &begin, &end, &allDayFl); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Title = untitled
		if title.Valid {
			e.Title = title.String
		}
		e.Start = time.UnixMilli(begin).In(loc)
		e.End = time.UnixMilli(end).In(loc)
		e.AllDay = allDayFl == 1
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	s.logger.Debug("Calendar events loaded",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("count", len(events)))
	return events, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
