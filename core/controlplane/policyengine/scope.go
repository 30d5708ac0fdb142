package policyengine

import (
	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

// ScopeService decides whether a policy applies to a project, based on the
// policy's compliance-framework and project include/exclude lists.
//
// Scope restriction is opt-in: when enforcement is disabled for the
// project's group the service fails open and every policy applies.
type ScopeService struct {
	project platform.Project
	root    platform.Namespace
	evalCtx platform.EvalContext
}

// NewScopeService builds a scope service for one project. root is the
// project's top-level namespace; the zero value means the project has no
// group, which disables enforcement.
func NewScopeService(project platform.Project, root platform.Namespace, evalCtx platform.EvalContext) ScopeService {
	return ScopeService{project: project, root: root, evalCtx: evalCtx}
}

// PolicyApplicable reports whether the policy applies to the project.
func (s ScopeService) PolicyApplicable(p *policy.Policy) bool {
	if !s.scopeEnforced() {
		return true
	}
	if p == nil {
		return false
	}
	return s.applicableForFramework(p.PolicyScope) && s.applicableForProject(p.PolicyScope)
}

func (s ScopeService) scopeEnforced() bool {
	if s.root.ID == 0 {
		return false
	}
	if !s.evalCtx.FlagEnabled(platform.FlagPolicyScope, s.root.ID) {
		return false
	}
	return s.root.PolicyScopeEnforced
}

func (s ScopeService) applicableForFramework(scope *policy.Scope) bool {
	if scope == nil || len(scope.ComplianceFrameworks) == 0 {
		return true
	}
	if s.project.ComplianceFrameworkID == 0 {
		return false
	}
	for _, ref := range scope.ComplianceFrameworks {
		if ref.ID == s.project.ComplianceFrameworkID {
			return true
		}
	}
	return false
}

func (s ScopeService) applicableForProject(scope *policy.Scope) bool {
	if scope == nil || scope.Projects == nil {
		return true
	}
	// Exclusion wins over inclusion.
	for _, ref := range scope.Projects.Excluding {
		if ref.ID == s.project.ID {
			return false
		}
	}
	if len(scope.Projects.Including) == 0 {
		return true
	}
	for _, ref := range scope.Projects.Including {
		if ref.ID == s.project.ID {
			return true
		}
	}
	return false
}
