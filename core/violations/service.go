package violations

import (
	"context"

	"github.com/guardplane/guardplane/core/infra/metrics"
	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

// Service accumulates violated rules for one merge request and commits them
// as a whole. It is not safe for concurrent use; evaluation of a single
// merge request is sequential.
type Service struct {
	mr      platform.MergeRequest
	evalCtx platform.EvalContext
	store   Store
	metrics metrics.SyncMetrics

	rules []policy.ViolatedRule
	seen  map[int64]bool
}

func NewService(mr platform.MergeRequest, evalCtx platform.EvalContext, store Store, m metrics.SyncMetrics) *Service {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Service{mr: mr, evalCtx: evalCtx, store: store, metrics: m, seen: map[int64]bool{}}
}

// Add accumulates rules, deduplicating by policy id. It returns the service
// so evaluation loops can chain calls.
func (s *Service) Add(rules ...policy.ViolatedRule) *Service {
	for _, rule := range rules {
		if s.seen[rule.ScanResultPolicyID] {
			continue
		}
		s.seen[rule.ScanResultPolicyID] = true
		s.rules = append(s.rules, rule)
	}
	return s
}

// Pending returns the number of accumulated, not yet committed rules.
func (s *Service) Pending() int { return len(s.rules) }

// Execute commits the accumulated set. When the any-merge-request feature is
// disabled the accumulated rules are discarded without touching the ledger.
// The accumulator is cleared on every path, success or not.
func (s *Service) Execute(ctx context.Context) error {
	rules := s.rules
	s.rules = nil
	s.seen = map[int64]bool{}

	if !s.evalCtx.FlagEnabled(platform.FlagAnyMergeRequest, s.mr.ProjectID) {
		s.metrics.IncLedgerWrites("skipped")
		return nil
	}
	if err := s.store.Replace(ctx, s.mr, rules); err != nil {
		s.metrics.IncLedgerWrites("error")
		return err
	}
	s.metrics.IncLedgerWrites("replaced")
	return nil
}
