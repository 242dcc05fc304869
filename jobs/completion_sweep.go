package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vnglass/glassflow/internal/jobs"
	"github.com/vnglass/glassflow/internal/production"
)

// Sweeper re-checks completion of open production orders.
type Sweeper interface {
	SweepOpenOrders(ctx context.Context) (production.SweepResult, error)
}

// CompletionSweepJob completes orders whose outputs were satisfied outside the
// export flow, for example by dispatch adjustments.
type CompletionSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCompletionSweepJob initialises the sweep handler.
func NewCompletionSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *CompletionSweepJob {
	return &CompletionSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep.
func (j *CompletionSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("completion sweep: handler not configured")
	}
	var payload CompletionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track("completion_sweep")
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	res, err := j.Sweeper.SweepOpenOrders(ctx)
	j.Metrics.AddSweepOrders("checked", res.Checked)
	j.Metrics.AddSweepOrders("completed", res.Completed)
	j.Metrics.AddSweepOrders("failed", res.Failed)
	if err != nil {
		logger.Error("completion sweep finished with errors",
			slog.Int("checked", res.Checked),
			slog.Int("failed", res.Failed),
			slog.Any("error", err),
		)
		return err
	}
	logger.Info("completion sweep finished",
		slog.Int("checked", res.Checked),
		slog.Int("completed", res.Completed),
	)
	return nil
}

func (j *CompletionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
