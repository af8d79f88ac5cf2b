package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/acpflow/job"
)

// Logging returns middleware that logs handler start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, rec *job.Record, next Handler) error {
		logger.Debug("handler started",
			slog.String("job_id", rec.ID.String()),
			slog.String("state", string(rec.State)),
			slog.String("job_type", string(rec.Spec.Type)),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("handler failed",
				slog.String("job_id", rec.ID.String()),
				slog.String("state", string(rec.State)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("handler completed",
				slog.String("job_id", rec.ID.String()),
				slog.String("state", string(rec.State)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
