// Package branchguard decides which repository branches are shielded by
// result-family policies: default-branch protection, protected-branch
// deletion, and force-push blocking.
package branchguard

import (
	"context"
	"errors"
	"path"
	"sort"

	"github.com/guardplane/guardplane/core/controlplane/policyengine"
	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

// settingFilter selects policies by the approval setting they enforce.
type settingFilter func(policy.ApprovalSettings) bool

// resolver collects the branch patterns of every applicable result-family
// policy and resolves them against the project's actual branches.
type resolver struct {
	dir     platform.Directory
	evalCtx platform.EvalContext
}

// resolvedBranches returns the sorted, deduplicated set of repository
// branches matched by any rule of an applicable policy passing filter.
func (r resolver) resolvedBranches(ctx context.Context, project platform.Project, filter settingFilter) ([]string, error) {
	patterns, err := r.rulePatterns(ctx, project, filter)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	branches, err := r.dir.RepositoryBranches(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []string
	for _, branch := range branches {
		if seen[branch] {
			continue
		}
		for _, pattern := range patterns {
			if matchBranch(pattern, branch) {
				seen[branch] = true
				out = append(out, branch)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r resolver) rulePatterns(ctx context.Context, project platform.Project, filter settingFilter) ([]string, error) {
	configs, err := r.dir.ConfigurationsForProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	root, err := r.dir.RootAncestor(ctx, project.NamespaceID)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		return nil, err
	}
	scope := policyengine.NewScopeService(project, root, r.evalCtx)

	var protectedPatterns []string
	protectedLoaded := false
	loadProtected := func() ([]string, error) {
		if protectedLoaded {
			return protectedPatterns, nil
		}
		records, err := r.dir.ProtectedBranches(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		for _, pb := range records {
			protectedPatterns = append(protectedPatterns, pb.Name)
		}
		protectedLoaded = true
		return protectedPatterns, nil
	}

	var patterns []string
	for _, cfg := range configs {
		for _, kind := range policy.KindScanResult.Family() {
			for _, p := range cfg.Document.List(kind) {
				p := p
				if !p.Enabled || !scope.PolicyApplicable(&p) {
					continue
				}
				if p.ApprovalSettings == nil || !filter(*p.ApprovalSettings) {
					continue
				}
				for _, rule := range p.Rules {
					patterns = append(patterns, rule.Branches...)
					switch rule.BranchType {
					case "default":
						if project.DefaultBranch != "" {
							patterns = append(patterns, project.DefaultBranch)
						}
					case "protected":
						prot, err := loadProtected()
						if err != nil {
							return nil, err
						}
						patterns = append(patterns, prot...)
					case "all":
						patterns = append(patterns, "*")
					}
				}
			}
		}
	}
	return patterns, nil
}

// matchBranch applies glob semantics. A malformed pattern matches nothing.
func matchBranch(pattern, branch string) bool {
	ok, err := path.Match(pattern, branch)
	return err == nil && ok
}
