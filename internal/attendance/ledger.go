package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staffpresence/internal/apperr"
	"staffpresence/internal/metrics"
	"staffpresence/internal/retry"
)

// Ledger owns daily time records: clock events, first-in/last-out and status.
type Ledger struct {
	store   Store
	loc     *time.Location
	policy  retry.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLocation sets the time zone calendar dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithRetryPolicy overrides the conflict retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		loc:    time.Local,
		policy: retry.DefaultPolicy,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DateOf returns the calendar date of t in the ledger's time zone.
func (l *Ledger) DateOf(t time.Time) string {
	return t.In(l.loc).Format(DateLayout)
}

// Today returns the current calendar date.
func (l *Ledger) Today() string {
	return l.DateOf(l.now())
}

// ClockIn logs an in event at the given server time. FirstIn is the earliest
// in event of the day; later clock-ins are logged but leave it unchanged.
func (l *Ledger) ClockIn(ctx context.Context, identifier string, at time.Time) (Record, error) {
	return l.append(ctx, KindIn, identifier, at)
}

// ClockOut logs an out event. LastOut only moves forward in time, so a
// delayed retry carrying an older timestamp never replaces a newer one.
func (l *Ledger) ClockOut(ctx context.Context, identifier string, at time.Time) (Record, error) {
	return l.append(ctx, KindOut, identifier, at)
}

func (l *Ledger) append(ctx context.Context, kind Kind, identifier string, at time.Time) (Record, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Record{}, apperr.Invalid("identifier is required")
	}
	if at.IsZero() {
		return Record{}, apperr.Invalid("timestamp is required")
	}
	at = at.UTC().Truncate(time.Microsecond)
	key := Key{Identifier: identifier, Date: l.DateOf(at)}

	appended := false
	rec, err := retry.OnConflict(ctx, l.policy, func(err error) {
		l.metrics.IncConflictRetry("ledger")
		l.logger.Debug("retrying clock event after conflict",
			zap.String("key", key.String()),
			zap.Error(err),
		)
	}, func() (Record, error) {
		return l.store.Update(ctx, key, func(rec *Record) bool {
			appended = rec.Append(Event{ID: uuid.NewString(), Kind: kind, At: at})
			return appended
		})
	})
	if err != nil {
		if errors.Is(err, apperr.ErrStorageUnavailable) {
			l.metrics.IncStorageError("ledger")
		}
		l.logger.Warn("clock event failed",
			zap.String("identifier", identifier),
			zap.String("kind", string(kind)),
			zap.Time("at", at),
			zap.Error(err),
		)
		return Record{}, err
	}

	if appended {
		l.metrics.IncClockEvent(string(kind))
	}
	l.logger.Info("clock event recorded",
		zap.String("identifier", identifier),
		zap.String("date", key.Date),
		zap.String("kind", string(kind)),
		zap.Bool("duplicate", !appended),
	)
	return withTimeline(rec), nil
}

// GetRecord returns the record for identifier on date, or apperr.ErrNotFound.
func (l *Ledger) GetRecord(ctx context.Context, identifier, date string) (Record, error) {
	key, err := parseKey(identifier, date)
	if err != nil {
		return Record{}, err
	}
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return Record{}, err
	}
	return withTimeline(rec), nil
}

// GetStatus returns the derived status, StatusNoRecord when there is no record.
func (l *Ledger) GetStatus(ctx context.Context, identifier, date string) (Status, error) {
	rec, err := l.GetRecord(ctx, identifier, date)
	if errors.Is(err, apperr.ErrNotFound) {
		return StatusNoRecord, nil
	}
	if err != nil {
		return "", err
	}
	return DeriveStatus(&rec), nil
}

// RecordsForDate returns every record for date.
func (l *Ledger) RecordsForDate(ctx context.Context, date string) ([]Record, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperr.Invalid("date must be YYYY-MM-DD, got %q", date)
	}
	return l.store.ListByDate(ctx, date)
}

func parseKey(identifier, date string) (Key, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Key{}, apperr.Invalid("identifier is required")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Key{}, apperr.Invalid("date must be YYYY-MM-DD, got %q", date)
	}
	return Key{Identifier: identifier, Date: date}, nil
}

func withTimeline(rec Record) Record {
	rec.Events = rec.Timeline()
	return rec
}
