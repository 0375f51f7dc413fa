package metrics

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Push sends the default registry to a pushgateway at url every period until ctx is done.
// A final push is made on exit so short runs are not lost.
func Push(ctx context.Context, logger *zap.Logger, clock clockwork.Clock, url string, period time.Duration, instance string) {
	pusher := push.New(url, Namespace).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("instance", instance)
	ticker := clock.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := pusher.Push(); err != nil {
				logger.Warn("failed to push metrics", zap.Error(err))
			}
			return
		case <-ticker.Chan():
			if err := pusher.Push(); err != nil {
				logger.Warn("failed to push metrics", zap.Error(err))
			}
		}
	}
}
