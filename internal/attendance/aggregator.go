package attendance

import (
	"context"
	"math"
	"time"

	"staffpresence/internal/apperr"
	"staffpresence/internal/directory"
)

// RecordSource supplies all records for one date. *Ledger satisfies it.
type RecordSource interface {
	RecordsForDate(ctx context.Context, date string) ([]Record, error)
}

// Summary is the dashboard view of one day.
type Summary struct {
	Date               string                 `json:"date"`
	TotalByRole        map[directory.Role]int `json:"total_by_role"`
	StatusCounts       map[Status]int         `json:"status_counts"`
	AverageWorkedHours float64                `json:"average_worked_hours"`
	ValidPairs         int                    `json:"valid_pairs"`
	GeneratedAt        time.Time              `json:"generated_at"`
}

// Aggregator computes daily summaries. It holds no state between calls.
type Aggregator struct {
	records RecordSource
	dir     directory.Lookup
	now     func() time.Time
}

// NewAggregator creates an aggregator over a record source and the directory.
func NewAggregator(records RecordSource, dir directory.Lookup) *Aggregator {
	return &Aggregator{records: records, dir: dir, now: time.Now}
}

// Summarize scans the directory and date's records. Headcount is taken from
// the directory alone. Worked hours come from directory persons whose record
// has both ends; spans that are not positive are skipped, not reported.
func (a *Aggregator) Summarize(ctx context.Context, date string) (Summary, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Summary{}, apperr.Invalid("date must be YYYY-MM-DD, got %q", date)
	}

	persons, err := a.dir.ListPersons(ctx)
	if err != nil {
		return Summary{}, err
	}
	records, err := a.records.RecordsForDate(ctx, date)
	if err != nil {
		return Summary{}, err
	}

	byID := make(map[string]*Record, len(records))
	for i := range records {
		byID[records[i].Identifier] = &records[i]
	}

	s := Summary{
		Date: date,
		TotalByRole: map[directory.Role]int{
			directory.RoleTeacher:  0,
			directory.RoleEmployee: 0,
			directory.RoleOther:    0,
		},
		StatusCounts: make(map[Status]int, len(AllStatuses)),
		GeneratedAt:  a.now(),
	}
	for _, st := range AllStatuses {
		s.StatusCounts[st] = 0
	}

	var total float64
	for _, p := range persons {
		s.TotalByRole[directory.ParseRole(string(p.Role))]++

		rec := byID[p.Identifier]
		s.StatusCounts[DeriveStatus(rec)]++
		if rec == nil {
			continue
		}
		if h, ok := rec.WorkedHours(); ok {
			total += h
			s.ValidPairs++
		}
	}
	if s.ValidPairs > 0 {
		s.AverageWorkedHours = math.Round(total/float64(s.ValidPairs)*10) / 10
	}
	return s, nil
}
