package presence

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staffpresence/internal/apperr"
	"staffpresence/internal/directory"
	"staffpresence/internal/metrics"
	"staffpresence/internal/retry"
)

// PostRequest is one "where am I" submission. PostedBy defaults to
// Identifier when empty; PosterRole is the role family the post came in
// through and is normalized with directory.ParseRole.
type PostRequest struct {
	Identifier      string
	PosterRole      string
	Location        string
	Reason          string
	DurationMinutes int
	At              time.Time
	PostedBy        string
}

// Board holds the single current location posting per identifier.
type Board struct {
	store   Store
	dir     directory.Lookup
	policy  retry.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Board.
type Option func(*Board)

func WithRetryPolicy(p retry.Policy) Option {
	return func(b *Board) { b.policy = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the time source used to decide expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBoard creates a board over store. dir resolves the poster's display
// name and may be nil.
func NewBoard(store Store, dir directory.Lookup, opts ...Option) *Board {
	b := &Board{
		store:  store,
		dir:    dir,
		policy: retry.DefaultPolicy,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PostLocation records a posting and returns whichever posting is current
// afterwards. A submission older than the stored one is accepted but does
// not replace it.
func (b *Board) PostLocation(ctx context.Context, req PostRequest) (Posting, error) {
	p, err := b.newPosting(ctx, req)
	if err != nil {
		return Posting{}, err
	}

	replaced := false
	cur, err := retry.OnConflict(ctx, b.policy, func(err error) {
		b.metrics.IncConflictRetry("board")
		b.logger.Debug("retrying posting after conflict",
			zap.String("identifier", p.Identifier),
			zap.Error(err),
		)
	}, func() (Posting, error) {
		return b.store.Update(ctx, p.Identifier, func(cur Posting, found bool) (Posting, bool) {
			replaced = !found || p.Supersedes(cur)
			if replaced {
				return p, true
			}
			return cur, false
		})
	})
	if err != nil {
		if errors.Is(err, apperr.ErrStorageUnavailable) {
			b.metrics.IncStorageError("board")
		}
		b.logger.Warn("location posting failed",
			zap.String("identifier", p.Identifier),
			zap.Error(err),
		)
		return Posting{}, err
	}

	b.metrics.IncPosting(string(p.RoleAtPosting))
	b.logger.Info("location posted",
		zap.String("identifier", p.Identifier),
		zap.String("role", string(p.RoleAtPosting)),
		zap.String("location", p.Location),
		zap.Bool("current", replaced),
	)
	return cur, nil
}

func (b *Board) newPosting(ctx context.Context, req PostRequest) (Posting, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return Posting{}, apperr.Invalid("identifier is required")
	}
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return Posting{}, apperr.Invalid("location is required")
	}
	if req.DurationMinutes <= 0 {
		return Posting{}, apperr.Invalid("duration must be positive, got %d", req.DurationMinutes)
	}
	if req.At.IsZero() {
		return Posting{}, apperr.Invalid("timestamp is required")
	}

	postedBy := strings.TrimSpace(req.PostedBy)
	if postedBy == "" {
		postedBy = identifier
	}
	at := req.At.UTC().Truncate(time.Microsecond)
	return Posting{
		ID:                 uuid.NewString(),
		Identifier:         identifier,
		Location:           location,
		Reason:             strings.TrimSpace(req.Reason),
		PostedAt:           at,
		ExpiresAt:          at.Add(time.Duration(req.DurationMinutes) * time.Minute),
		RoleAtPosting:      directory.ParseRole(req.PosterRole),
		PostedByIdentifier: postedBy,
		PostedByName:       b.displayName(ctx, postedBy),
	}, nil
}

func (b *Board) displayName(ctx context.Context, identifier string) string {
	if b.dir == nil {
		return ""
	}
	person, err := b.dir.GetPerson(ctx, identifier)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			b.logger.Warn("directory lookup failed", zap.String("identifier", identifier), zap.Error(err))
		}
		return ""
	}
	return person.DisplayName
}

// CurrentLocation returns the current posting for identifier, or
// apperr.ErrNotFound when nothing was ever posted.
func (b *Board) CurrentLocation(ctx context.Context, identifier string) (View, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return View{}, apperr.Invalid("identifier is required")
	}
	p, err := b.store.Get(ctx, identifier)
	if err != nil {
		return View{}, err
	}
	return b.view(p), nil
}

// ActivePostings yields the current posting of every identifier, expired
// ones included. The sequence reads lazily and can be ranged over again.
func (b *Board) ActivePostings(ctx context.Context) iter.Seq2[View, error] {
	return func(yield func(View, error) bool) {
		for p, err := range b.store.Scan(ctx) {
			if err != nil {
				yield(View{}, err)
				return
			}
			if !yield(b.view(p), nil) {
				return
			}
		}
	}
}

func (b *Board) view(p Posting) View {
	return View{Posting: p, Expired: p.ExpiredAt(b.now())}
}
