package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// formatTime renders t as the RFC 3339 UTC text stored in timestamp columns.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nullTime returns nil for the zero time so the column stores NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseNullTime returns the zero time for a NULL column.
func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

// formatDate renders a business date as YYYY-MM-DD.
func formatDate(t time.Time) string {
	return t.Format(model.DateLayout)
}

// parseDate parses a YYYY-MM-DD business date as midnight UTC.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse business date %q: %w", s, err)
	}
	return t, nil
}
