package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/breakwatch/internal/feed"
)

// Loop runs the sources immediately and then every interval until ctx is done.
func (r *Runner) Loop(ctx context.Context, sources []feed.Source, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx, sources); err != nil && ctx.Err() == nil {
			zap.L().Error("ingest: run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
