package syncengine

import (
	"context"
	"fmt"

	"github.com/guardplane/guardplane/core/infra/bus"
	"github.com/guardplane/guardplane/core/infra/logging"
	"github.com/guardplane/guardplane/core/infra/metrics"
	"github.com/guardplane/guardplane/core/platform"
)

const logComponent = "SYNC"

// SyncScanResultPoliciesService fans a configuration change out into one
// sync job per target project. Group-scoped configurations enumerate their
// projects in cursor pages so large namespaces stay bounded in memory.
type SyncScanResultPoliciesService struct {
	dir       platform.Directory
	pub       Publisher
	metrics   metrics.SyncMetrics
	batchSize int
}

func NewSyncScanResultPoliciesService(dir platform.Directory, pub Publisher, m metrics.SyncMetrics, batchSize int) *SyncScanResultPoliciesService {
	if m == nil {
		m = metrics.Noop{}
	}
	return &SyncScanResultPoliciesService{dir: dir, pub: pub, metrics: m, batchSize: batchSize}
}

func (s *SyncScanResultPoliciesService) Execute(ctx context.Context, cfg platform.Configuration) error {
	if !cfg.NamespaceScoped() {
		return s.enqueueProject(cfg.ID, cfg.ProjectID)
	}
	return s.dir.EachProject(ctx, cfg.NamespaceID, s.batchSize, func(p platform.Project) error {
		return s.enqueueProject(cfg.ID, p.ID)
	})
}

func (s *SyncScanResultPoliciesService) enqueueProject(configurationID, projectID int64) error {
	env, err := bus.NewEnvelope("project_sync", ProjectSyncJob{
		ConfigurationID: configurationID,
		ProjectID:       projectID,
	})
	if err != nil {
		return err
	}
	if err := s.pub.Publish(SubjectSyncProject, env); err != nil {
		return fmt.Errorf("enqueue project sync for %d: %w", projectID, err)
	}
	s.metrics.IncSyncEnqueued("project")
	logging.Info(logComponent, "enqueued project sync", "configuration_id", configurationID, "project_id", projectID, "job_id", env.JobID)
	return nil
}

// SyncOpenedMergeRequestsService brings every open merge request of one
// project back in line with a configuration version. The heavy work happens
// in downstream jobs; this service relinks approval rules and enqueues.
type SyncOpenedMergeRequestsService struct {
	dir     platform.Directory
	pub     Publisher
	evalCtx platform.EvalContext
	metrics metrics.SyncMetrics
}

func NewSyncOpenedMergeRequestsService(dir platform.Directory, pub Publisher, evalCtx platform.EvalContext, m metrics.SyncMetrics) *SyncOpenedMergeRequestsService {
	if m == nil {
		m = metrics.Noop{}
	}
	return &SyncOpenedMergeRequestsService{dir: dir, pub: pub, evalCtx: evalCtx, metrics: m}
}

func (s *SyncOpenedMergeRequestsService) Execute(ctx context.Context, cfg platform.Configuration, projectID int64) error {
	mrs, err := s.dir.OpenMergeRequests(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list open merge requests for project %d: %w", projectID, err)
	}
	for _, mr := range mrs {
		if err := s.syncOne(ctx, cfg, mr); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyncOpenedMergeRequestsService) syncOne(ctx context.Context, cfg platform.Configuration, mr platform.MergeRequest) error {
	if err := s.dir.LinkApprovalRules(ctx, mr.ID, cfg.ID); err != nil {
		return fmt.Errorf("link approval rules for mr %d: %w", mr.ID, err)
	}

	if s.evalCtx.FlagEnabled(platform.FlagAnyMergeRequest, mr.ProjectID) && mr.AnyMergeRequestRule {
		if err := s.enqueue(SubjectSyncMRRules, "mr_rules", MergeRequestRulesJob{
			ConfigurationID: cfg.ID,
			ProjectID:       mr.ProjectID,
			MergeRequestID:  mr.ID,
		}); err != nil {
			return err
		}
	}

	if s.evalCtx.FlagEnabled(platform.FlagUnenforceableNotification, mr.ProjectID) {
		if err := s.enqueue(SubjectNotifyUnenforceable, "unenforceable", UnenforceableNotifyJob{
			ConfigurationID: cfg.ID,
			ProjectID:       mr.ProjectID,
			MergeRequestID:  mr.ID,
		}); err != nil {
			return err
		}
	}

	if mr.HeadPipelineID != 0 {
		job := PipelineSyncJob{
			ConfigurationID: cfg.ID,
			ProjectID:       mr.ProjectID,
			MergeRequestID:  mr.ID,
			PipelineID:      mr.HeadPipelineID,
		}
		if err := s.enqueue(SubjectSyncFindings, "findings", job); err != nil {
			return err
		}
		if err := s.enqueue(SubjectSyncReports, "reports", job); err != nil {
			return err
		}
	}
	return nil
}

func (s *SyncOpenedMergeRequestsService) enqueue(subject, kind string, payload any) error {
	env, err := bus.NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(subject, env); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	s.metrics.IncSyncEnqueued(kind)
	return nil
}
