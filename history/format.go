package history

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FormatRelativeDate renders an ISO timestamp as "Hoje às HH:MM",
// "Ontem às HH:MM" or "DD/MM/AAAA às HH:MM" in now's location.
// Unparseable input is returned unchanged.
func FormatRelativeDate(iso string, now time.Time) string {
	t, err := parseTimestamp(iso)
	if err != nil {
		return iso
	}
	local := t.In(now.Location())
	clock := local.Format("15:04")

	switch daysBetween(t, now) {
	case 0:
		return "Hoje às " + clock
	case 1:
		return "Ontem às " + clock
	default:
		return local.Format("02/01/2006") + " às " + clock
	}
}

// Stats summarises the store for the page header.
type Stats struct {
	Total        int    `json:"total"`
	Agents       int    `json:"agents"`
	LastActivity string `json:"lastActivity"`
}

// AgentOption is one entry of the agent filter selector.
type AgentOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summarize computes the record count, distinct agent count and the recency
// label of the newest record.
func Summarize(records []Record, now time.Time) Stats {
	agents := make(map[string]struct{})
	for _, rec := range records {
		agents[rec.AgentID] = struct{}{}
	}
	return Stats{
		Total:        len(records),
		Agents:       len(agents),
		LastActivity: RecencyLabel(records, now),
	}
}

// RecencyLabel returns "Hoje", "Ontem", "Nd atrás" for the newest record, or
// "-" when there is none.
func RecencyLabel(records []Record, now time.Time) string {
	var newest time.Time
	found := false
	for _, rec := range records {
		t, err := rec.Time()
		if err != nil {
			continue
		}
		if !found || t.After(newest) {
			newest = t
			found = true
		}
	}
	if !found {
		return "-"
	}

	switch days := daysBetween(newest, now); {
	case days <= 0:
		return "Hoje"
	case days == 1:
		return "Ontem"
	default:
		return fmt.Sprintf("%dd atrás", days)
	}
}

// AgentOptions returns the distinct agents of records sorted by display name.
// The first name seen for an id wins, which is the newest one.
func AgentOptions(records []Record) []AgentOption {
	seen := make(map[string]bool)
	options := make([]AgentOption, 0)
	for _, rec := range records {
		if seen[rec.AgentID] {
			continue
		}
		seen[rec.AgentID] = true
		options = append(options, AgentOption{ID: rec.AgentID, Name: rec.AgentName})
	}

	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	sort.SliceStable(options, func(i, j int) bool {
		return col.CompareString(options[i].Name, options[j].Name) < 0
	})
	return options
}
