package capture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lehigh-university-libraries/fotobox/internal/metrics"
)

var errNotReady = errors.New("processed image not ready")

// waitForResult polls until the processed image for imageID exists and
// returns its URL. Polls never overlap: the next one is issued a fixed
// interval after the previous one resolved. There is no attempt limit.
// A transport error is retried exactly like a not-ready status; only
// cancelling ctx ends the loop early.
func (c *Client) waitForResult(ctx context.Context, imageID string) (string, error) {
	poll := func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", backoff.Permanent(err)
		}

		c.mu.Lock()
		c.session.Attempts++
		c.mu.Unlock()

		ready, err := c.svc.CheckProcessed(ctx, imageID)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			metrics.PollsTotal.WithLabelValues(metrics.OutcomeError).Inc()
			slog.Warn("Error checking for processed image", "image_id", imageID, "err", err)
			return "", err
		}
		if !ready {
			metrics.PollsTotal.WithLabelValues(metrics.OutcomeNotReady).Inc()
			return "", errNotReady
		}

		metrics.PollsTotal.WithLabelValues(metrics.OutcomeReady).Inc()
		return c.svc.ProcessedURL(imageID), nil
	}

	return backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opts.PollInterval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("Processed image not available yet", "image_id", imageID, "reason", err, "retry_in", next)
		}),
	)
}
