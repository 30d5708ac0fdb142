package syncengine

import (
	"context"
	"errors"
	"time"

	"github.com/guardplane/guardplane/core/infra/bus"
	"github.com/guardplane/guardplane/core/infra/logging"
	"github.com/guardplane/guardplane/core/infra/metrics"
	"github.com/guardplane/guardplane/core/platform"
)

// Subscriber is the consuming side of the bus.
type Subscriber interface {
	Subscribe(subject, queue string, handler func(*bus.Envelope) error) error
}

// MergeRequestSyncer performs the per-merge-request leaf work of the
// fan-out. Rule evaluation against scanner output lives outside this
// module; deployments inject their evaluator here.
type MergeRequestSyncer interface {
	SyncRules(ctx context.Context, job MergeRequestRulesJob) error
	NotifyUnenforceable(ctx context.Context, job UnenforceableNotifyJob) error
	SyncFindings(ctx context.Context, job PipelineSyncJob) error
	SyncReports(ctx context.Context, job PipelineSyncJob) error
}

// defaultSyncer keeps the fan-out idempotent on its own: rule sync re-links
// the approval rules (a no-op when already linked) and the remaining jobs
// are logged until an evaluator is injected.
type defaultSyncer struct {
	dir platform.Directory
}

func (s defaultSyncer) SyncRules(ctx context.Context, job MergeRequestRulesJob) error {
	return s.dir.LinkApprovalRules(ctx, job.MergeRequestID, job.ConfigurationID)
}

func (s defaultSyncer) NotifyUnenforceable(_ context.Context, job UnenforceableNotifyJob) error {
	logging.Info(logComponent, "unenforceable rules notification", "merge_request_id", job.MergeRequestID, "configuration_id", job.ConfigurationID)
	return nil
}

func (s defaultSyncer) SyncFindings(_ context.Context, job PipelineSyncJob) error {
	logging.Info(logComponent, "findings sync", "merge_request_id", job.MergeRequestID, "pipeline_id", job.PipelineID)
	return nil
}

func (s defaultSyncer) SyncReports(_ context.Context, job PipelineSyncJob) error {
	logging.Info(logComponent, "report sync", "merge_request_id", job.MergeRequestID, "pipeline_id", job.PipelineID)
	return nil
}

const retryBackoff = 30 * time.Second

// Worker consumes sync jobs. Handlers recompute from the snapshot in the
// job, so redelivery of the same envelope converges on the same state.
type Worker struct {
	dir     platform.Directory
	mrSync  *SyncOpenedMergeRequestsService
	syncer  MergeRequestSyncer
	metrics metrics.SyncMetrics
	queue   string
}

func NewWorker(dir platform.Directory, pub Publisher, evalCtx platform.EvalContext, m metrics.SyncMetrics, queue string) *Worker {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Worker{
		dir:     dir,
		mrSync:  NewSyncOpenedMergeRequestsService(dir, pub, evalCtx, m),
		syncer:  defaultSyncer{dir: dir},
		metrics: m,
		queue:   queue,
	}
}

// WithSyncer overrides the per-merge-request collaborator.
func (w *Worker) WithSyncer(s MergeRequestSyncer) *Worker {
	if s != nil {
		w.syncer = s
	}
	return w
}

// Start attaches all job handlers on the worker's queue group.
func (w *Worker) Start(sub Subscriber) error {
	handlers := map[string]func(*bus.Envelope) error{
		SubjectSyncProject:         w.HandleProjectSync,
		SubjectSyncMRRules:         w.HandleMRRules,
		SubjectNotifyUnenforceable: w.HandleUnenforceable,
		SubjectSyncFindings:        w.HandleFindings,
		SubjectSyncReports:         w.HandleReports,
	}
	for subject, handler := range handlers {
		if err := sub.Subscribe(subject, w.queue, handler); err != nil {
			return err
		}
	}
	return nil
}

// HandleProjectSync resyncs every open merge request of the job's project.
// A configuration deleted between enqueue and dequeue is a stale job, not
// an error.
func (w *Worker) HandleProjectSync(env *bus.Envelope) error {
	ctx := context.Background()
	var job ProjectSyncJob
	if err := env.Decode(&job); err != nil {
		w.metrics.IncSyncProcessed("project", "decode_error")
		return err
	}

	cfg, err := w.dir.Configuration(ctx, job.ConfigurationID)
	if errors.Is(err, platform.ErrNotFound) {
		logging.Warn(logComponent, "configuration vanished, dropping job", "configuration_id", job.ConfigurationID, "job_id", env.JobID)
		w.metrics.IncSyncProcessed("project", "stale")
		return nil
	}
	if err != nil {
		w.metrics.IncSyncProcessed("project", "error")
		return bus.RetryAfter(err, retryBackoff)
	}

	if err := w.mrSync.Execute(ctx, cfg, job.ProjectID); err != nil {
		w.metrics.IncSyncProcessed("project", "error")
		return bus.RetryAfter(err, retryBackoff)
	}
	w.metrics.IncSyncProcessed("project", "ok")
	return nil
}

func (w *Worker) HandleMRRules(env *bus.Envelope) error {
	var job MergeRequestRulesJob
	if err := env.Decode(&job); err != nil {
		w.metrics.IncSyncProcessed("mr_rules", "decode_error")
		return err
	}
	if err := w.syncer.SyncRules(context.Background(), job); err != nil {
		w.metrics.IncSyncProcessed("mr_rules", "error")
		return bus.RetryAfter(err, retryBackoff)
	}
	w.metrics.IncSyncProcessed("mr_rules", "ok")
	return nil
}

func (w *Worker) HandleUnenforceable(env *bus.Envelope) error {
	var job UnenforceableNotifyJob
	if err := env.Decode(&job); err != nil {
		w.metrics.IncSyncProcessed("unenforceable", "decode_error")
		return err
	}
	if err := w.syncer.NotifyUnenforceable(context.Background(), job); err != nil {
		w.metrics.IncSyncProcessed("unenforceable", "error")
		return bus.RetryAfter(err, retryBackoff)
	}
	w.metrics.IncSyncProcessed("unenforceable", "ok")
	return nil
}

func (w *Worker) HandleFindings(env *bus.Envelope) error {
	var job PipelineSyncJob
	if err := env.Decode(&job); err != nil {
		w.metrics.IncSyncProcessed("findings", "decode_error")
		return err
	}
	if err := w.syncer.SyncFindings(context.Background(), job); err != nil {
		w.metrics.IncSyncProcessed("findings", "error")
		return bus.RetryAfter(err, retryBackoff)
	}
	w.metrics.IncSyncProcessed("findings", "ok")
	return nil
}

func (w *Worker) HandleReports(env *bus.Envelope) error {
	var job PipelineSyncJob
	if err := env.Decode(&job); err != nil {
		w.metrics.IncSyncProcessed("reports", "decode_error")
		return err
	}
	if err := w.syncer.SyncReports(context.Background(), job); err != nil {
		w.metrics.IncSyncProcessed("reports", "error")
		return bus.RetryAfter(err, retryBackoff)
	}
	w.metrics.IncSyncProcessed("reports", "ok")
	return nil
}
