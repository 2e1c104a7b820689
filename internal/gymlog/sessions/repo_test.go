package sessions

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bkovacevic/gymlog/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, sqlDB.Close())
	})
	require.NoError(t, db.Migrate(sqlDB))

	// fixture user and template for the session FKs
	_, err = sqlDB.Exec(
		`INSERT INTO users (id, email, password_hash, is_admin, created_at) VALUES (1, 'test@gymlog.io', 'x', 1, ?);`,
		time.Now().Format(time.RFC3339),
	)
	require.NoError(t, err)
	_, err = sqlDB.Exec(`INSERT INTO workout_templates (id, name) VALUES (1, 'Push');`)
	require.NoError(t, err)

	return sqlDB
}

func TestRepo_EnsureActive_Idempotent(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()
	day := DayOf(time.Now())

	id1, err := repo.EnsureActive(ctx, 1, 1, "Push", day)
	require.NoError(t, err)
	require.Positive(t, id1)

	// repeated calls return the same open session
	id2, err := repo.EnsureActive(ctx, 1, 1, "Push", day)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	session, err := repo.GetActive(ctx, 1, 1, day)
	require.NoError(t, err)
	assert.Equal(t, id1, session.ID)
	assert.Equal(t, "Push", session.WorkoutName)
	assert.Equal(t, day, session.Day)
	assert.Nil(t, session.EndedAt)
}

func TestRepo_CloseActive_ThenEnsureCreatesNew(t *testing.T) {
	repo := NewRepo(newTestDB(t))
	ctx := context.Background()
	day := DayOf(time.Now())

	id1, err := repo.EnsureActive(ctx, 1, 1, "Push", day)
	require.NoError(t, err)

	closedID, err := repo.CloseActive(ctx, 1, 1, day)
	require.NoError(t, err)
	assert.Equal(t, id1, closedID)

	_, err = repo.GetActive(ctx, 1, 1, day)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// a closed session stays closed, logging again starts a new one
	id2, err := repo.EnsureActive(ctx, 1, 1, "Push", day)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestRepo_CloseActive_NoOpenSession(t *testing.T) {
	repo := NewRepo(newTestDB(t))

	_, err := repo.CloseActive(context.Background(), 1, 1, DayOf(time.Now()))
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRepo_GetActive_None(t *testing.T) {
	repo := NewRepo(newTestDB(t))

	_, err := repo.GetActive(context.Background(), 1, 1, DayOf(time.Now()))
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRepo_EnsureActive_Concurrent(t *testing.T) {
	sqlDB := newTestDB(t)
	repo := NewRepo(sqlDB)
	day := DayOf(time.Now())

	// hammer the same (user, template, day) from parallel goroutines; every
	// call must converge on the one session, none may error out
	const callers = 8
	ids := make(chan int, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := repo.EnsureActive(context.Background(), 1, 1, "Push", day)
			ids <- id
			errs <- err
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	first := <-ids
	for id := range ids {
		assert.Equal(t, first, id)
	}

	var openSessions int
	require.NoError(t, sqlDB.QueryRow(
		`SELECT COUNT(*) FROM workout_sessions WHERE user_id = 1 AND template_id = 1 AND day = ? AND ended_at IS NULL;`,
		day,
	).Scan(&openSessions))
	assert.Equal(t, 1, openSessions)
}

func TestRepo_EnsureActive_RaceLosesToUniqueIndex(t *testing.T) {
	sqlDB := newTestDB(t)
	repo := NewRepo(sqlDB)
	ctx := context.Background()
	day := DayOf(time.Now())

	// simulate the concurrent winner by inserting the open session directly
	_, err := sqlDB.Exec(
		`INSERT INTO workout_sessions (user_id, template_id, workout_name, day, started_at) VALUES (1, 1, 'Push', ?, ?);`,
		day, time.Now().Format(time.RFC3339),
	)
	require.NoError(t, err)

	id, err := repo.EnsureActive(ctx, 1, 1, "Push", day)
	require.NoError(t, err)

	session, err := repo.GetActive(ctx, 1, 1, day)
	require.NoError(t, err)
	assert.Equal(t, session.ID, id)

	// the unique index itself rejects a second open session outright
	_, err = sqlDB.Exec(
		`INSERT INTO workout_sessions (user_id, template_id, workout_name, day, started_at) VALUES (1, 1, 'Push', ?, ?);`,
		day, time.Now().Format(time.RFC3339),
	)
	assert.Error(t, err)
}
