package main

import (
	"context"
	"log/slog"
	"time"

	"assetmirror/internal/config"
	"assetmirror/internal/failure"
	"assetmirror/internal/logging"
	"assetmirror/internal/notifications"
)

// notifyRunFinished posts notice and only logs delivery failures; a missed
// notice never changes the command's exit status.
func notifyRunFinished(ctx context.Context, cfg *config.Config, logger *slog.Logger, notice notifications.RunNotice) {
	switch {
	case failure.IsRunFatal(notice.Err):
		notice.Outcome = notifications.OutcomeAborted
	case notice.Err != nil, notice.Failed > 0, notice.Fatal > 0:
		notice.Outcome = notifications.OutcomeFailed
	default:
		notice.Outcome = notifications.OutcomeSucceeded
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := notifications.NewService(cfg).NotifyRunFinished(ctx, notice); err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notify_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notify.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
