package tasks

import (
	"context"
	"time"

	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/logging"
)

// RegisterMaintenance wires the recurring housekeeping work: dropping expired
// replay records and JWKS cooldowns from the cache, deleting expired
// credential metadata, and publishing publisher counts as gauges.
func RegisterMaintenance(
	m *Manager,
	cache core.KV,
	credentials core.CredentialStore,
	publishers core.PublisherStore,
	metrics core.Metrics,
) {
	m.Register("cache-sweep", 5*time.Minute, func(_ context.Context, logger logging.InternalLogger) error {
		dropped := cache.Sweep()
		logger.Info("dropped %d expired cache entries", dropped)
		return nil
	})

	m.Register("credential-sweep", 10*time.Minute, func(ctx context.Context, logger logging.InternalLogger) error {
		deleted, err := credentials.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("deleted %d expired credentials", deleted)
		return nil
	})

	m.Register("publisher-counts", time.Minute, func(_ context.Context, logger logging.InternalLogger) error {
		counts, err := publishers.CountByKind()
		if err != nil {
			return err
		}
		for kind, n := range counts {
			metrics.Gauge("publishers.count", float64(n), "kind:"+kind.String())
		}
		logger.Info("published counts for %d publisher kinds", len(counts))
		return nil
	})
}
