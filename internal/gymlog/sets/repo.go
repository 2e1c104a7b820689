package sets

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, entry Entry) (_ *Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sets.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	res, err := r.db.ExecContext(
		ctx,
		`
			INSERT INTO set_entries (user_id, session_id, day, workout, exercise, weight, reps, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		entry.UserID, entry.SessionID, entry.Day, entry.Workout,
		entry.Exercise, entry.Weight, entry.Reps, entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	span.SetAttributes(attribute.Int("entry.id", int(id)))

	entry.ID = int(id)
	return &entry, nil
}

// ForSession returns the newest sets of a session, newest first.
func (r *Repo) ForSession(ctx context.Context, sessionID, limit int) (_ []Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sets.forSession")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", sessionID))
	span.SetAttributes(attribute.Int("limit", limit))

	rows, err := r.db.QueryContext(
		ctx,
		`
			SELECT id, user_id, session_id, day, workout, exercise, weight, reps, created_at
			FROM set_entries
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?;`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return rows2entries(rows)
}

func rows2entries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var createdAt string
		// user_id is NULL on legacy rows that nobody claimed yet
		var userID sql.NullInt64
		if err := rows.Scan(
			&e.ID, &userID, &e.SessionID, &e.Day, &e.Workout,
			&e.Exercise, &e.Weight, &e.Reps, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		e.UserID = int(userID.Int64)

		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for entry %d: %w", e.ID, err)
		}
		e.CreatedAt = parsed

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return entries, nil
}
