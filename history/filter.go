package history

import (
	"strings"
	"time"
)

// Period is a rolling window relative to today.
type Period string

const (
	PeriodAll   Period = ""
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Criteria selects records. Zero values match everything.
type Criteria struct {
	SearchTerm string `json:"searchTerm,omitempty"`
	AgentID    string `json:"agentId,omitempty"`
	Period     Period `json:"period,omitempty"`
}

// Filter returns the records matching every supplied criterion, in input order.
// now anchors the period windows; its location defines local midnight.
func Filter(records []Record, c Criteria, now time.Time) []Record {
	term := strings.ToLower(c.SearchTerm)

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if term != "" && !matchesSearch(rec, term) {
			continue
		}
		if c.AgentID != "" && rec.AgentID != c.AgentID {
			continue
		}
		if !matchesPeriod(rec, c.Period, now) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesSearch(rec Record, term string) bool {
	if strings.Contains(strings.ToLower(rec.AgentName), term) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Preview), term) {
		return true
	}
	for _, msg := range rec.Messages {
		if strings.Contains(strings.ToLower(msg.Content), term) {
			return true
		}
	}
	return false
}

func matchesPeriod(rec Record, period Period, now time.Time) bool {
	var window int
	switch period {
	case PeriodToday:
		window = 0
	case PeriodWeek:
		window = 7
	case PeriodMonth:
		window = 30
	case PeriodYear:
		window = 365
	default:
		return true
	}

	t, err := rec.Time()
	if err != nil {
		return false
	}
	diff := daysBetween(t, now)
	if window == 0 {
		return diff == 0
	}
	return diff < window
}

// daysBetween counts calendar days from t to now, both taken at local
// midnight in now's location.
func daysBetween(t, now time.Time) int {
	loc := now.Location()
	ty, tm, td := t.In(loc).Date()
	ny, nm, nd := now.Date()
	from := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	to := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
