package sessions

import "time"

// Session is one workout: at most one open session exists per user,
// template and day. Logged sets hang off the session until it is closed.
type Session struct {
	ID          int        `json:"id"`
	UserID      int        `json:"userId"`
	TemplateID  int        `json:"templateId"`
	WorkoutName string     `json:"workoutName"`
	Day         string     `json:"day"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// DayFormat is the local calendar date a session belongs to.
const DayFormat = "2006-01-02"

func DayOf(t time.Time) string {
	return t.Format(DayFormat)
}
