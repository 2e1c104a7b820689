package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

var ErrNoActiveSession = errors.New("no active workout session")

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{
		db: db,
	}
}

// GetActive returns the newest open session for (user, template, day), or
// ErrNoActiveSession.
func (r *Repo) GetActive(ctx context.Context, userID, templateID int, day string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.getActive")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("template.id", templateID))
	span.SetAttributes(attribute.String("day", day))

	return r.getActive(ctx, r.db, userID, templateID, day)
}

// EnsureActive returns the id of the open session for (user, template, day),
// creating one when absent. Concurrent calls converge on a single session:
// the tx begins immediate (see db.Open), so writers queue on busy_timeout
// and the losers find the winner's committed session on their read. The
// partial unique index on open sessions backstops the invariant, and an
// insert it rejects falls back to re-reading the session that won.
func (r *Repo) EnsureActive(ctx context.Context, userID, templateID int, workoutName, day string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.ensureActive")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("template.id", templateID))
	span.SetAttributes(attribute.String("day", day))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err := r.getActive(ctx, tx, userID, templateID, day)
	if err == nil {
		if err = tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit: %w", err)
		}
		return session.ID, nil
	}
	if !errors.Is(err, ErrNoActiveSession) {
		return 0, err
	}

	res, err := tx.ExecContext(
		ctx,
		`
			INSERT INTO workout_sessions (user_id, template_id, workout_name, day, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, NULL);`,
		userID, templateID, workoutName, day, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		// lost the race against a concurrent insert, the open session
		// now exists and the unique index rejected ours
		if session, errGet := r.getActive(ctx, tx, userID, templateID, day); errGet == nil {
			err = tx.Commit()
			if err != nil {
				return 0, fmt.Errorf("commit: %w", err)
			}
			return session.ID, nil
		}
		return 0, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(attribute.Int("session.id", int(id)))
	return int(id), nil
}

// CloseActive stamps ended_at on the open session for (user, template, day)
// and returns its id. ErrNoActiveSession when nothing is open.
func (r *Repo) CloseActive(ctx context.Context, userID, templateID int, day string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.closeActive")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("template.id", templateID))
	span.SetAttributes(attribute.String("day", day))

	session, err := r.GetActive(ctx, userID, templateID, day)
	if err != nil {
		return 0, err
	}

	if _, err = r.db.ExecContext(
		ctx,
		`UPDATE workout_sessions SET ended_at = ? WHERE id = ?;`,
		time.Now().Format(time.RFC3339), session.ID,
	); err != nil {
		return 0, fmt.Errorf("close session: %w", err)
	}

	return session.ID, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repo) getActive(ctx context.Context, q querier, userID, templateID int, day string) (*Session, error) {
	var s Session
	var startedAt string
	err := q.QueryRowContext(
		ctx,
		`
			SELECT id, user_id, template_id, workout_name, day, started_at
			FROM workout_sessions
			WHERE user_id = ? AND template_id = ? AND day = ? AND ended_at IS NULL
			ORDER BY id DESC
			LIMIT 1;`,
		userID, templateID, day,
	).Scan(&s.ID, &s.UserID, &s.TemplateID, &s.WorkoutName, &s.Day, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	s.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	return &s, nil
}
