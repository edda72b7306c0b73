package attendance

import (
	"sort"
	"time"
)

// DateLayout is the calendar-date format used in record keys.
const DateLayout = "2006-01-02"

// Kind is the direction of a clock event.
type Kind string

const (
	KindIn  Kind = "in"
	KindOut Kind = "out"
)

// Status is the presence status derived from a daily time record.
type Status string

const (
	StatusNoRecord   Status = "NoRecord"
	StatusInCampus   Status = "InCampus"
	StatusPresent    Status = "Present"
	StatusIncomplete Status = "Incomplete"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusNoRecord, StatusInCampus, StatusPresent, StatusIncomplete}

// Key identifies one daily time record.
type Key struct {
	Identifier string
	Date       string
}

func (k Key) String() string { return k.Identifier + "|" + k.Date }

// Event is one clock event in a record's log.
type Event struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

// Record is the daily time record for one person on one calendar date.
// Events is append-only and kept in arrival order; FirstIn and LastOut are
// derived from it.
type Record struct {
	Identifier string     `json:"identifier"`
	Date       string     `json:"date"`
	FirstIn    *time.Time `json:"first_in,omitempty"`
	LastOut    *time.Time `json:"last_out,omitempty"`
	Events     []Event    `json:"events"`
}

// Append adds e to the log and moves FirstIn/LastOut by timestamp. It
// returns false, leaving the record untouched, when an event of the same
// kind and timestamp is already logged.
func (r *Record) Append(e Event) bool {
	for _, existing := range r.Events {
		if existing.Kind == e.Kind && existing.At.Equal(e.At) {
			return false
		}
	}
	r.Events = append(r.Events, e)

	at := e.At
	switch e.Kind {
	case KindIn:
		if r.FirstIn == nil || at.Before(*r.FirstIn) {
			r.FirstIn = &at
		}
	case KindOut:
		if r.LastOut == nil || at.After(*r.LastOut) {
			r.LastOut = &at
		}
	}
	return true
}

// Timeline returns the events ordered by timestamp; ties keep arrival order.
func (r Record) Timeline() []Event {
	out := make([]Event, len(r.Events))
	copy(out, r.Events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	if r.FirstIn != nil {
		t := *r.FirstIn
		out.FirstIn = &t
	}
	if r.LastOut != nil {
		t := *r.LastOut
		out.LastOut = &t
	}
	out.Events = make([]Event, len(r.Events))
	copy(out.Events, r.Events)
	return out
}

// WorkedHours returns LastOut-FirstIn in hours. ok is false when either end
// is missing or the span is not positive.
func (r Record) WorkedHours() (hours float64, ok bool) {
	if r.FirstIn == nil || r.LastOut == nil {
		return 0, false
	}
	h := r.LastOut.Sub(*r.FirstIn).Hours()
	if h <= 0 {
		return 0, false
	}
	return h, true
}

// DeriveStatus computes the presence status of rec. A nil record is NoRecord.
func DeriveStatus(rec *Record) Status {
	if rec == nil {
		return StatusNoRecord
	}
	switch {
	case rec.FirstIn == nil && rec.LastOut == nil:
		return StatusNoRecord
	case rec.FirstIn == nil:
		return StatusIncomplete
	case rec.LastOut == nil || rec.LastOut.Before(*rec.FirstIn):
		return StatusInCampus
	default:
		return StatusPresent
	}
}
