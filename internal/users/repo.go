package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already taken")
)

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{
		db: db,
	}
}

// Create inserts a new user. The is_admin flag is decided in the same
// transaction that counts existing users, so two concurrent first
// registrations cannot both become admin.
func (r *Repo) Create(ctx context.Context, email, passwordHash string, createdAt time.Time) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users;`).Scan(&count); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	isAdmin := count == 0

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO users (email, password_hash, is_admin, created_at) VALUES (?, ?, ?, ?);`,
		email, passwordHash, isAdmin, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrEmailTaken
		}
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(attribute.Int("user.id", int(id)))
	span.SetAttributes(attribute.Bool("user.admin", isAdmin))

	return &User{
		ID:           int(id),
		Email:        email,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    createdAt,
	}, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.getByEmail")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.scanOne(r.db.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, is_admin, created_at FROM users WHERE email = ?;`,
		email,
	))
}

func (r *Repo) Get(ctx context.Context, id int) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	return r.scanOne(r.db.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, is_admin, created_at FROM users WHERE id = ?;`,
		id,
	))
}

func (r *Repo) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users;`).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

// ClaimLegacyRows assigns all workout sessions and set entries that have no
// owner (rows imported from before accounts existed) to the given user.
// Returns the number of claimed rows. Once claimed, rows stay claimed.
func (r *Repo) ClaimLegacyRows(ctx context.Context, userID int) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.claimLegacyRows")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	resSessions, err := tx.ExecContext(
		ctx,
		`UPDATE workout_sessions SET user_id = ? WHERE user_id IS NULL;`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("claim sessions: %w", err)
	}

	resSets, err := tx.ExecContext(
		ctx,
		`UPDATE set_entries SET user_id = ? WHERE user_id IS NULL;`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("claim set entries: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	claimedSessions, _ := resSessions.RowsAffected()
	claimedSets, _ := resSets.RowsAffected()
	return claimedSessions + claimedSets, nil
}

func (r *Repo) scanOne(row *sql.Row) (*User, error) {
	var u User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	u.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &u, nil
}

func isUniqueViolation(err error) bool {
	// modernc sqlite has no typed constraint error, match the message
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
