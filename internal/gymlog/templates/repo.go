package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrTemplateNotFound = errors.New("workout template not found")

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) List(ctx context.Context) (_ []Template, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM workout_templates ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	templates := make([]Template, 0)
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return templates, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Template, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("template.id", id))

	var t Template
	err = r.db.QueryRowContext(
		ctx,
		`SELECT id, name FROM workout_templates WHERE id = ?;`,
		id,
	).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// ExercisesFor returns the exercises of a template in their form order.
func (r *Repo) ExercisesFor(ctx context.Context, templateID int) (_ []Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.exercisesFor")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("template.id", templateID))

	rows, err := r.db.QueryContext(
		ctx,
		`
			SELECT e.id, e.name
			FROM template_exercises te
			JOIN exercises e ON e.id = te.exercise_id
			WHERE te.template_id = ?
			ORDER BY te.order_index, e.id;`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	exercises := make([]Exercise, 0)
	for rows.Next() {
		var e Exercise
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		exercises = append(exercises, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return exercises, nil
}

// AddExercise attaches an exercise (created if it does not exist yet) to the
// end of a template. Adding an exercise already on the template is a no-op.
func (r *Repo) AddExercise(ctx context.Context, templateID int, exerciseName string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.addExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("template.id", templateID))
	span.SetAttributes(attribute.String("exercise.name", exerciseName))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO exercises (name) VALUES (?);`,
		exerciseName,
	); err != nil {
		return fmt.Errorf("insert exercise: %w", err)
	}

	var exerciseID int
	if err = tx.QueryRowContext(
		ctx,
		`SELECT id FROM exercises WHERE name = ?;`,
		exerciseName,
	).Scan(&exerciseID); err != nil {
		return fmt.Errorf("get exercise id: %w", err)
	}

	if _, err = tx.ExecContext(
		ctx,
		`
			INSERT OR IGNORE INTO template_exercises (template_id, exercise_id, order_index)
			VALUES (
				?, ?,
				COALESCE((SELECT MAX(order_index) + 1 FROM template_exercises WHERE template_id = ?), 0)
			);`,
		templateID, exerciseID, templateID,
	); err != nil {
		return fmt.Errorf("attach exercise: %w", err)
	}

	return tx.Commit()
}

// RemoveExercise detaches an exercise from a template. The exercise itself
// and its logged sets survive. Unknown ids are a no-op.
func (r *Repo) RemoveExercise(ctx context.Context, templateID, exerciseID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.removeExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("template.id", templateID))
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	_, err = r.db.ExecContext(
		ctx,
		`DELETE FROM template_exercises WHERE template_id = ? AND exercise_id = ?;`,
		templateID, exerciseID,
	)
	return err
}

// SeedIfEmpty populates an empty database with the default workout split.
func (r *Repo) SeedIfEmpty(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.templates.seedIfEmpty")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workout_templates;`).Scan(&count); err != nil {
		return fmt.Errorf("count templates: %w", err)
	}
	if count > 0 {
		return nil
	}

	log.Debugln("empty database, seeding default workout templates ...")

	// iterate in a stable order so seeded IDs are deterministic
	names := make([]string, 0, len(DefaultWorkouts))
	for name := range DefaultWorkouts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res, err := r.db.ExecContext(ctx, `INSERT INTO workout_templates (name) VALUES (?);`, name)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", name, err)
		}
		templateID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("seed template %s id: %w", name, err)
		}

		for _, exerciseName := range DefaultWorkouts[name] {
			if err := r.AddExercise(ctx, int(templateID), exerciseName); err != nil {
				return fmt.Errorf("seed exercise %s: %w", exerciseName, err)
			}
		}
	}

	return nil
}
