// Package syncengine reconciles merge-request approval state after a policy
// configuration changes. A single edit fans out into per-project and
// per-merge-request jobs on the bus; every job carries a full input snapshot
// so it can be replayed safely under at-least-once delivery.
package syncengine

import "github.com/guardplane/guardplane/core/infra/bus"

// Bus subjects for the policy sync fan-out. All of them live under the
// durable policy.> stream when JetStream is on.
const (
	SubjectSyncProject         = "policy.sync.project"
	SubjectSyncMRRules         = "policy.sync.mr_rules"
	SubjectNotifyUnenforceable = "policy.notify.unenforceable"
	SubjectSyncFindings        = "policy.sync.findings"
	SubjectSyncReports         = "policy.sync.reports"
)

// Publisher is the narrow bus surface the sync services need.
type Publisher interface {
	Publish(subject string, env *bus.Envelope) error
}

// ProjectSyncJob asks a worker to resync every open merge request of one
// project against a configuration version.
type ProjectSyncJob struct {
	ConfigurationID int64 `json:"configuration_id"`
	ProjectID       int64 `json:"project_id"`
}

// MergeRequestRulesJob resyncs the any-merge-request approval rules of one
// merge request.
type MergeRequestRulesJob struct {
	ConfigurationID int64 `json:"configuration_id"`
	ProjectID       int64 `json:"project_id"`
	MergeRequestID  int64 `json:"merge_request_id"`
}

// UnenforceableNotifyJob triggers the unenforceable-rule notification for
// one merge request.
type UnenforceableNotifyJob struct {
	ConfigurationID int64 `json:"configuration_id"`
	ProjectID       int64 `json:"project_id"`
	MergeRequestID  int64 `json:"merge_request_id"`
}

// PipelineSyncJob keys findings and report sync to a head pipeline.
type PipelineSyncJob struct {
	ConfigurationID int64 `json:"configuration_id"`
	ProjectID       int64 `json:"project_id"`
	MergeRequestID  int64 `json:"merge_request_id"`
	PipelineID      int64 `json:"pipeline_id"`
}
