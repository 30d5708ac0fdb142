package branchguard

import (
	"context"

	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

func blocksUnprotecting(s policy.ApprovalSettings) bool { return s.BlockUnprotectingBranches }
func preventsForcePush(s policy.ApprovalSettings) bool  { return s.PreventForcePushing }

// DefaultBranchUpdationCheckService reports whether changing the project's
// default branch must be blocked. Absence of the license or the flag never
// blocks the operation.
type DefaultBranchUpdationCheckService struct {
	resolver resolver
	project  platform.Project
	evalCtx  platform.EvalContext
}

func NewDefaultBranchUpdationCheckService(dir platform.Directory, project platform.Project, evalCtx platform.EvalContext) *DefaultBranchUpdationCheckService {
	return &DefaultBranchUpdationCheckService{
		resolver: resolver{dir: dir, evalCtx: evalCtx},
		project:  project,
		evalCtx:  evalCtx,
	}
}

func (s *DefaultBranchUpdationCheckService) Execute(ctx context.Context) (bool, error) {
	if !s.evalCtx.Licensed(platform.LicenseSecurityOrchestration) ||
		!s.evalCtx.FlagEnabled(platform.FlagBlockUnprotectingBranches, s.project.ID) {
		return false, nil
	}
	if s.project.DefaultBranch == "" {
		return false, nil
	}
	branches, err := s.resolver.resolvedBranches(ctx, s.project, blocksUnprotecting)
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b == s.project.DefaultBranch {
			return true, nil
		}
	}
	return false, nil
}

// ProtectedBranchesDeletionCheckService filters candidate protected-branch
// records down to the ones that are safe to delete.
type ProtectedBranchesDeletionCheckService struct {
	resolver resolver
	project  platform.Project
	evalCtx  platform.EvalContext
}

func NewProtectedBranchesDeletionCheckService(dir platform.Directory, project platform.Project, evalCtx platform.EvalContext) *ProtectedBranchesDeletionCheckService {
	return &ProtectedBranchesDeletionCheckService{
		resolver: resolver{dir: dir, evalCtx: evalCtx},
		project:  project,
		evalCtx:  evalCtx,
	}
}

// Execute returns the complement of the protected set: every candidate whose
// pattern matches no policy-resolved branch.
func (s *ProtectedBranchesDeletionCheckService) Execute(ctx context.Context, candidates []platform.ProtectedBranch) ([]platform.ProtectedBranch, error) {
	if !s.evalCtx.Licensed(platform.LicenseSecurityOrchestration) ||
		!s.evalCtx.FlagEnabled(platform.FlagBlockUnprotectingBranches, s.project.ID) {
		return candidates, nil
	}
	guarded, err := s.resolver.resolvedBranches(ctx, s.project, blocksUnprotecting)
	if err != nil {
		return nil, err
	}

	var deletable []platform.ProtectedBranch
	for _, candidate := range candidates {
		if !coversAny(candidate.Name, guarded) {
			deletable = append(deletable, candidate)
		}
	}
	return deletable, nil
}

func coversAny(pattern string, branches []string) bool {
	for _, b := range branches {
		if matchBranch(pattern, b) {
			return true
		}
	}
	return false
}

// ProtectedBranchesForcePushService lists the branches on which force-push
// must be blocked.
type ProtectedBranchesForcePushService struct {
	resolver resolver
	project  platform.Project
	evalCtx  platform.EvalContext
}

func NewProtectedBranchesForcePushService(dir platform.Directory, project platform.Project, evalCtx platform.EvalContext) *ProtectedBranchesForcePushService {
	return &ProtectedBranchesForcePushService{
		resolver: resolver{dir: dir, evalCtx: evalCtx},
		project:  project,
		evalCtx:  evalCtx,
	}
}

func (s *ProtectedBranchesForcePushService) Execute(ctx context.Context) ([]string, error) {
	if !s.evalCtx.FlagEnabled(platform.FlagPreventForcePushing, s.project.ID) {
		return []string{}, nil
	}
	branches, err := s.resolver.resolvedBranches(ctx, s.project, preventsForcePush)
	if err != nil {
		return nil, err
	}
	if branches == nil {
		branches = []string{}
	}
	return branches, nil
}
