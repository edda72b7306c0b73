package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"staffpresence/internal/attendance"
	"staffpresence/internal/metrics"
	"staffpresence/internal/queue"
)

// Summarizer computes a daily summary. *attendance.Aggregator satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, date string) (attendance.Summary, error)
}

// Worker keeps the summary gauges for today current. It refreshes on a
// cron schedule and whenever a clock event for today arrives on the queue.
type Worker struct {
	queue   queue.Queue
	summary Summarizer
	today   func() string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a worker. today returns the current calendar date.
func New(q queue.Queue, s Summarizer, today func() string, m *metrics.Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: q, summary: s, today: today, metrics: m, logger: logger}
}

// Refresh recomputes the summary for date and publishes it to the gauges.
func (w *Worker) Refresh(ctx context.Context, date string) (attendance.Summary, error) {
	s, err := w.summary.Summarize(ctx, date)
	if err != nil {
		w.logger.Warn("summary refresh failed", zap.String("date", date), zap.Error(err))
		return attendance.Summary{}, err
	}

	headcount := make(map[string]int, len(s.TotalByRole))
	for role, n := range s.TotalByRole {
		headcount[string(role)] = n
	}
	statuses := make(map[string]int, len(s.StatusCounts))
	for st, n := range s.StatusCounts {
		statuses[string(st)] = n
	}
	w.metrics.SetSummary(headcount, statuses, s.AverageWorkedHours)

	w.logger.Info("summary refreshed",
		zap.String("date", s.Date),
		zap.Any("total_by_role", headcount),
		zap.Any("status_counts", statuses),
		zap.Float64("average_worked_hours", s.AverageWorkedHours),
		zap.Int("valid_pairs", s.ValidPairs),
	)
	return s, nil
}

// Run blocks until ctx is done or the queue closes.
func (w *Worker) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		_, _ = w.Refresh(ctx, w.today())
	}); err != nil {
		return fmt.Errorf("summary schedule %q: %w", schedule, err)
	}

	msgs, err := w.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.Start()
	defer func() { <-c.Stop().Done() }()

	_, _ = w.Refresh(ctx, w.today())
	w.logger.Info("worker started", zap.String("schedule", schedule))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Info("queue closed")
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	switch msg.Type {
	case queue.TypeClock:
		if msg.Date != w.today() {
			w.logger.Debug("skipping clock event for another day",
				zap.String("identifier", msg.Identifier),
				zap.String("date", msg.Date),
			)
			return
		}
		_, _ = w.Refresh(ctx, msg.Date)
	case queue.TypePosting:
		w.logger.Debug("location posted", zap.String("identifier", msg.Identifier), zap.Time("at", msg.At))
	default:
		w.logger.Warn("unknown message type", zap.String("type", msg.Type))
	}
}
