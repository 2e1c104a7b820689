package templates

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bkovacevic/gymlog/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()

	sqlDB, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, sqlDB.Close())
	})
	require.NoError(t, db.Migrate(sqlDB))

	return NewRepo(sqlDB)
}

func exerciseNames(exercises []Exercise) []string {
	names := make([]string, 0, len(exercises))
	for _, e := range exercises {
		names = append(names, e.Name)
	}
	return names
}

func TestRepo_SeedIfEmpty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SeedIfEmpty(ctx))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	// list is ordered by name
	assert.Equal(t, "Legs", list[0].Name)
	assert.Equal(t, "Pull", list[1].Name)
	assert.Equal(t, "Push", list[2].Name)

	legs, err := repo.ExercisesFor(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkouts["Legs"], exerciseNames(legs))

	// second run must not duplicate anything
	require.NoError(t, repo.SeedIfEmpty(ctx))
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestRepo_AddExercise(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SeedIfEmpty(ctx))

	push, err := repo.Get(ctx, mustTemplateID(t, repo, "Push"))
	require.NoError(t, err)

	require.NoError(t, repo.AddExercise(ctx, push.ID, "Lateral Raise"))

	exercises, err := repo.ExercisesFor(ctx, push.ID)
	require.NoError(t, err)
	// new exercise lands at the end of the form
	require.Len(t, exercises, 5)
	assert.Equal(t, "Lateral Raise", exercises[4].Name)

	// adding the same exercise again is a no-op
	require.NoError(t, repo.AddExercise(ctx, push.ID, "Lateral Raise"))
	exercises, err = repo.ExercisesFor(ctx, push.ID)
	require.NoError(t, err)
	assert.Len(t, exercises, 5)
}

func TestRepo_AddExercise_SharedAcrossTemplates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SeedIfEmpty(ctx))

	pushID := mustTemplateID(t, repo, "Push")
	pullID := mustTemplateID(t, repo, "Pull")

	// Row already exists on Pull; attaching it to Push reuses the exercise row
	require.NoError(t, repo.AddExercise(ctx, pushID, "Row"))

	pushExercises, err := repo.ExercisesFor(ctx, pushID)
	require.NoError(t, err)
	pullExercises, err := repo.ExercisesFor(ctx, pullID)
	require.NoError(t, err)

	assert.Contains(t, exerciseNames(pushExercises), "Row")
	assert.Contains(t, exerciseNames(pullExercises), "Row")
}

func TestRepo_RemoveExercise(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SeedIfEmpty(ctx))

	pushID := mustTemplateID(t, repo, "Push")
	exercises, err := repo.ExercisesFor(ctx, pushID)
	require.NoError(t, err)
	require.Len(t, exercises, 4)

	require.NoError(t, repo.RemoveExercise(ctx, pushID, exercises[0].ID))

	after, err := repo.ExercisesFor(ctx, pushID)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.NotContains(t, exerciseNames(after), exercises[0].Name)

	// unknown ids are a silent no-op
	require.NoError(t, repo.RemoveExercise(ctx, pushID, 98765))
	require.NoError(t, repo.RemoveExercise(ctx, 98765, exercises[1].ID))
}

func TestRepo_Get_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func mustTemplateID(t *testing.T, repo *Repo, name string) int {
	t.Helper()
	list, err := repo.List(context.Background())
	require.NoError(t, err)
	for _, tmpl := range list {
		if tmpl.Name == name {
			return tmpl.ID
		}
	}
	t.Fatalf("template %s not found", name)
	return 0
}
