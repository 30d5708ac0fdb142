package syncengine

import (
	"context"
	"time"

	"github.com/guardplane/guardplane/core/infra/logging"
	"github.com/guardplane/guardplane/core/platform"
)

// Reconciler periodically re-enqueues sync for configurations whose saved
// document changed but whose fan-out has not completed. Together with
// idempotent job bodies it makes the fan-out self-healing: a crashed or
// dropped enqueue is retried on the next tick.
type Reconciler struct {
	dir      platform.Directory
	sync     *SyncScanResultPoliciesService
	interval time.Duration
	limit    int
}

func NewReconciler(dir platform.Directory, sync *SyncScanResultPoliciesService, interval time.Duration, limit int) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if limit <= 0 {
		limit = 50
	}
	return &Reconciler{dir: dir, sync: sync, interval: interval, limit: limit}
}

// Run blocks until ctx is done, reconciling once per interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce drains one batch of dirty configurations. The dirty mark is
// cleared only after the fan-out enqueues succeed, so failures are retried.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	cfgs, err := r.dir.DirtyConfigurations(ctx, r.limit)
	if err != nil {
		logging.Error(logComponent, "list dirty configurations", "error", err)
		return
	}
	for _, cfg := range cfgs {
		if err := r.sync.Execute(ctx, cfg); err != nil {
			logging.Error(logComponent, "reconcile sync failed", "configuration_id", cfg.ID, "error", err)
			continue
		}
		if err := r.dir.ClearDirty(ctx, cfg.ID); err != nil {
			logging.Error(logComponent, "clear dirty mark", "configuration_id", cfg.ID, "error", err)
		}
	}
}
