// Package platform defines the contracts guardplane consumes from the
// surrounding application: the project/group hierarchy, merge request and
// branch lookups, policy configuration storage, and capability checks.
package platform

import (
	"context"
	"errors"

	"github.com/guardplane/guardplane/core/policy"
)

// ErrNotFound is returned by directory lookups that miss.
var ErrNotFound = errors.New("not found")

// Project is a repository-bearing project inside a namespace.
type Project struct {
	ID                    int64  `json:"id"`
	FullPath              string `json:"full_path"`
	NamespaceID           int64  `json:"namespace_id"`
	DefaultBranch         string `json:"default_branch"`
	ComplianceFrameworkID int64  `json:"compliance_framework_id,omitempty"`
}

// Namespace is a group. Policy configurations attached to a namespace apply
// transitively to every project beneath it.
type Namespace struct {
	ID                  int64  `json:"id"`
	FullPath            string `json:"full_path"`
	ParentID            int64  `json:"parent_id,omitempty"`
	PolicyScopeEnforced bool   `json:"policy_scope_enforced,omitempty"`
	AllowCustomCI       bool   `json:"allow_custom_ci,omitempty"`
}

// MergeRequest is an open merge request as seen by the sync services.
type MergeRequest struct {
	ID                  int64  `json:"id"`
	ProjectID           int64  `json:"project_id"`
	SourceBranch        string `json:"source_branch"`
	TargetBranch        string `json:"target_branch"`
	HeadPipelineID      int64  `json:"head_pipeline_id,omitempty"`
	AnyMergeRequestRule bool   `json:"any_merge_request_rule,omitempty"`
}

// ProtectedBranch is a protected-branch record; Name may be a glob pattern.
type ProtectedBranch struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
}

// Configuration is the root security policy configuration. Exactly one of
// ProjectID and NamespaceID is set.
type Configuration struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id,omitempty"`
	NamespaceID int64           `json:"namespace_id,omitempty"`
	Document    policy.Document `json:"document"`
}

// NamespaceScoped reports whether the configuration is attached to a group.
func (c Configuration) NamespaceScoped() bool {
	return c.NamespaceID != 0
}

// Directory is the hierarchy and configuration accessor. Implementations
// must keep EachProject cursor-paged so large namespaces enumerate in
// bounded memory.
type Directory interface {
	Project(ctx context.Context, id int64) (Project, error)
	Namespace(ctx context.Context, id int64) (Namespace, error)
	RootAncestor(ctx context.Context, namespaceID int64) (Namespace, error)
	EachProject(ctx context.Context, namespaceID int64, batchSize int, fn func(Project) error) error

	OpenMergeRequests(ctx context.Context, projectID int64) ([]MergeRequest, error)
	RepositoryBranches(ctx context.Context, projectID int64) ([]string, error)
	ProtectedBranches(ctx context.Context, projectID int64) ([]ProtectedBranch, error)

	Configuration(ctx context.Context, id int64) (Configuration, error)
	ConfigurationsForProject(ctx context.Context, projectID int64) ([]Configuration, error)
	SaveConfiguration(ctx context.Context, cfg Configuration) error
	DirtyConfigurations(ctx context.Context, limit int) ([]Configuration, error)
	ClearDirty(ctx context.Context, configurationID int64) error

	LinkApprovalRules(ctx context.Context, mergeRequestID, configurationID int64) error
}
