package warmup

// Stage is an immutable step of the warm-up progression.
type Stage struct {
	ID                   int      `json:"id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	MaxDailyMessages     int      `json:"maxDailyMessages"`
	DurationDays         int      `json:"durationDays"`
	AllowedMedia         bool     `json:"allowedMedia"`
	MaxExternalContacts  int      `json:"maxExternalContacts"`
	RequiredResponseRate float64  `json:"requiredResponseRate"`
	TimeDistribution     []string `json:"timeDistribution"`
}

// MaxErrorRate is the error rate at or above which advancement is denied.
const MaxErrorRate = 0.1

var stages = []Stage{
	{
		ID:                   1,
		Name:                 "Setup and initial validation",
		Description:          "Basic setup and first test messages to internal contacts",
		MaxDailyMessages:     5,
		DurationDays:         3,
		AllowedMedia:         false,
		MaxExternalContacts:  0,
		RequiredResponseRate: 1.0,
		TimeDistribution:     []string{"09:00", "14:00", "18:00"},
	},
	{
		ID:                   2,
		Name:                 "Very limited sending",
		Description:          "Very limited sending to internal contacts",
		MaxDailyMessages:     15,
		DurationDays:         4,
		AllowedMedia:         true,
		MaxExternalContacts:  3,
		RequiredResponseRate: 0.8,
		TimeDistribution:     []string{"09:00", "11:00", "14:00", "16:00", "18:00"},
	},
	{
		ID:                   3,
		Name:                 "Gradual increase and diversification",
		Description:          "Gradual volume increase with more varied content",
		MaxDailyMessages:     30,
		DurationDays:         7,
		AllowedMedia:         true,
		MaxExternalContacts:  5,
		RequiredResponseRate: 0.7,
		TimeDistribution:     []string{"08:00", "10:00", "12:00", "14:00", "16:00", "18:00", "20:00"},
	},
	{
		ID:                   4,
		Name:                 "Natural conversation simulation",
		Description:          "Natural conversations spread over the day",
		MaxDailyMessages:     50,
		DurationDays:         7,
		AllowedMedia:         true,
		MaxExternalContacts:  10,
		RequiredResponseRate: 0.6,
		TimeDistribution:     []string{"08:00", "09:30", "11:00", "13:00", "14:30", "16:00", "17:30", "19:00", "20:30"},
	},
	{
		ID:                   5,
		Name:                 "Pre-production ramp-up",
		Description:          "Moderate volume with multiple formats",
		MaxDailyMessages:     100,
		DurationDays:         7,
		AllowedMedia:         true,
		MaxExternalContacts:  20,
		RequiredResponseRate: 0.6,
		TimeDistribution:     []string{"08:00", "09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00", "19:00", "20:00"},
	},
	{
		ID:                   6,
		Name:                 "Controlled production",
		Description:          "Real production traffic under constant monitoring",
		MaxDailyMessages:     200,
		DurationDays:         30,
		AllowedMedia:         true,
		MaxExternalContacts:  50,
		RequiredResponseRate: 0.5,
		TimeDistribution:     []string{"08:00", "09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00", "19:00", "20:00", "21:00"},
	},
}

// MaxStage is the terminal stage id.
var MaxStage = len(stages)

// Stages returns a copy of the catalog in order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = s
		out[i].TimeDistribution = append([]string(nil), s.TimeDistribution...)
	}
	return out
}

// StageByID looks up a catalog entry.
func StageByID(id int) (Stage, bool) {
	if id < 1 || id > len(stages) {
		return Stage{}, false
	}
	s := stages[id-1]
	s.TimeDistribution = append([]string(nil), s.TimeDistribution...)
	return s, true
}

// isBasicStage reports whether a stage restricts content to basic templates
// and contacts to internal numbers.
func isBasicStage(id int) bool {
	return id <= 2
}
