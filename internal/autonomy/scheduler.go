package autonomy

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/jeebs/internal/models"
)

// Run executes one think-cycle per interval until ctx is cancelled. The first
// cycle runs one full interval after start. A failing cycle is logged and the
// loop continues. When the scheduler is disabled Run logs once and returns.
func (t *Thinker) Run(ctx context.Context) error {
	if !t.settings.Enabled {
		t.setStatus(ctx, models.RuntimeDisabled, false)
		t.logger.Info("autonomy: scheduler disabled by configuration")
		return nil
	}

	t.setStatus(ctx, models.RuntimeRunning, true)
	t.logger.Info("autonomy: scheduler started",
		slog.Duration("interval", t.settings.Interval),
		slog.Duration("cooldown", t.settings.Cooldown),
		slog.Int("pending_cap", t.settings.PendingCap))

	ticker := time.NewTicker(t.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			t.setStatus(stopCtx, models.RuntimeStopped, false)
			cancel()
			t.logger.Info("autonomy: scheduler stopped")
			return nil
		case <-ticker.C:
			res, err := t.Cycle(ctx, false)
			if err != nil {
				t.logger.Error("autonomy: think-cycle failed", slog.String("error", err.Error()))
				continue
			}
			t.logger.Debug("autonomy: think-cycle done",
				slog.Bool("created_update", res.CreatedUpdate),
				slog.String("reason", res.Reason))
		}
	}
}
