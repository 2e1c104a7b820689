package sets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bkovacevic/gymlog/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Analyzer answers the two per-exercise questions the home page shows next
// to every logging form: what was the last logged set, and what is the
// all-time personal record.
type Analyzer struct {
	db *sql.DB
}

func NewAnalyzer(db *sql.DB) *Analyzer {
	return &Analyzer{
		db: db,
	}
}

// LastSets returns the most recently logged set per exercise (the entry
// with the highest id). Exercises the user never logged are absent from
// the result map.
func (a *Analyzer) LastSets(ctx context.Context, userID int, exerciseNames []string) (_ map[string]Stat, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.sets.lastSets")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("exercises", len(exerciseNames)))

	if len(exerciseNames) == 0 {
		return map[string]Stat{}, nil
	}

	placeholders, args := inArgs(userID, exerciseNames)
	query := fmt.Sprintf(`
		SELECT se.exercise, se.weight, se.reps, se.day
		FROM set_entries se
		JOIN (
			SELECT exercise, MAX(id) AS max_id
			FROM set_entries
			WHERE user_id = ? AND exercise IN (%s)
			GROUP BY exercise
		) last ON last.max_id = se.id;`, placeholders)

	return a.queryStats(ctx, query, args)
}

// PersonalRecords returns the all-time best set per exercise. Best is the
// lexicographic top by weight, then reps, then recency: heaviest weight
// wins, reps break weight ties, and the latest entry (max id) breaks the
// rest.
func (a *Analyzer) PersonalRecords(ctx context.Context, userID int, exerciseNames []string) (_ map[string]Stat, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.sets.personalRecords")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("user.id", userID))
	span.SetAttributes(attribute.Int("exercises", len(exerciseNames)))

	if len(exerciseNames) == 0 {
		return map[string]Stat{}, nil
	}

	placeholders, args := inArgs(userID, exerciseNames)
	query := fmt.Sprintf(`
		SELECT se.exercise, se.weight, se.reps, se.day
		FROM set_entries se
		WHERE se.user_id = ? AND se.exercise IN (%s)
		AND se.id = (
			SELECT se2.id FROM set_entries se2
			WHERE se2.user_id = se.user_id AND se2.exercise = se.exercise
			ORDER BY se2.weight DESC, se2.reps DESC, se2.id DESC
			LIMIT 1
		);`, placeholders)

	return a.queryStats(ctx, query, args)
}

func (a *Analyzer) queryStats(ctx context.Context, query string, args []any) (map[string]Stat, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]Stat)
	for rows.Next() {
		var exercise string
		var stat Stat
		if err := rows.Scan(&exercise, &stat.Weight, &stat.Reps, &stat.Day); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		stats[exercise] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return stats, nil
}

func inArgs(userID int, exerciseNames []string) (placeholders string, args []any) {
	placeholders = strings.TrimSuffix(strings.Repeat("?,", len(exerciseNames)), ",")
	args = append(args, userID)
	for _, name := range exerciseNames {
		args = append(args, name)
	}
	return placeholders, args
}
