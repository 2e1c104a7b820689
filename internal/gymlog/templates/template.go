package templates

// Template is a named workout day, e.g. Push, Pull or Legs. The exercises
// attached to it define the logging form shown on the home page.
type Template struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Exercise struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DefaultWorkouts is the seed applied once to an empty database.
var DefaultWorkouts = map[string][]string{
	"Push": {"Bench Press", "Incline DB Press", "Overhead Press", "Tricep Pushdown"},
	"Pull": {"Lat Pulldown", "Row", "Face Pull", "Bicep Curl"},
	"Legs": {"Squat", "RDL", "Leg Press", "Leg Curl", "Calf Raise"},
}
