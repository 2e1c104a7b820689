package sets

import "time"

// Entry is one logged set. Entries are immutable: nothing in the app ever
// updates or deletes them, history only grows.
type Entry struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	SessionID int       `json:"sessionId"`
	Day       string    `json:"day"`
	Workout   string    `json:"workout"`
	Exercise  string    `json:"exercise"`
	Weight    float64   `json:"weight"`
	Reps      int       `json:"reps"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stat is the per-exercise summary shown next to the logging form, either
// the last logged set or the personal record.
type Stat struct {
	Weight float64 `json:"weight"`
	Reps   int     `json:"reps"`
	Day    string  `json:"day"`
}

// Guardrails for incoming sets. Values outside are silently discarded.
const (
	MinWeight = 0
	MaxWeight = 2000
	MinReps   = 1
	MaxReps   = 200
)

func InRange(weight float64, reps int) bool {
	return weight >= MinWeight && weight <= MaxWeight && reps >= MinReps && reps <= MaxReps
}
