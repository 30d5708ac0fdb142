package violations

import (
	"context"
	"reflect"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func anyMRContext() platform.EvalContext {
	return platform.EvalContext{
		Flags: platform.StaticFlags{platform.FlagAnyMergeRequest: true},
	}
}

var testMR = platform.MergeRequest{ID: 7, ProjectID: 3, SourceBranch: "feature", TargetBranch: "main"}

func TestExecuteReplacesExactly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := NewService(testMR, anyMRContext(), store, nil)
	first.Add(
		policy.ViolatedRule{ScanResultPolicyID: 1, PolicyName: "crit-findings"},
		policy.ViolatedRule{ScanResultPolicyID: 2, PolicyName: "license-check"},
	)
	if err := first.Execute(ctx); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	// Re-evaluation settles on a different rule set; stale rows must go.
	second := NewService(testMR, anyMRContext(), store, nil)
	second.Add(policy.ViolatedRule{ScanResultPolicyID: 2, PolicyName: "license-check"})
	if err := second.Execute(ctx); err != nil {
		t.Fatalf("second execute: %v", err)
	}

	got, err := store.List(ctx, testMR.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []policy.ViolatedRule{{ScanResultPolicyID: 2, PolicyName: "license-check"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ledger mismatch: got %+v want %+v", got, want)
	}
}

func TestExecuteWithNoViolationsClearsLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc := NewService(testMR, anyMRContext(), store, nil)
	svc.Add(policy.ViolatedRule{ScanResultPolicyID: 1, PolicyName: "crit-findings"})
	if err := svc.Execute(ctx); err != nil {
		t.Fatalf("seed execute: %v", err)
	}

	clean := NewService(testMR, anyMRContext(), store, nil)
	if err := clean.Execute(ctx); err != nil {
		t.Fatalf("clean execute: %v", err)
	}

	got, err := store.List(ctx, testMR.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ledger must be empty after clean evaluation: %+v", got)
	}
	mrs, err := store.ViolatingMergeRequests(ctx, testMR.ProjectID)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(mrs) != 0 {
		t.Fatalf("project index must drop the clean mr: %+v", mrs)
	}
}

func TestKillSwitchDiscardsWithoutWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := NewService(testMR, anyMRContext(), store, nil)
	seed.Add(policy.ViolatedRule{ScanResultPolicyID: 1, PolicyName: "crit-findings"})
	if err := seed.Execute(ctx); err != nil {
		t.Fatalf("seed execute: %v", err)
	}

	// Flag off: accumulated rules are dropped and the ledger stays as-is.
	gated := NewService(testMR, platform.EvalContext{}, store, nil)
	gated.Add(policy.ViolatedRule{ScanResultPolicyID: 9, PolicyName: "new-rule"})
	if err := gated.Execute(ctx); err != nil {
		t.Fatalf("gated execute: %v", err)
	}
	if gated.Pending() != 0 {
		t.Fatal("accumulator must clear even when the flag gates the write")
	}

	got, err := store.List(ctx, testMR.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ScanResultPolicyID != 1 {
		t.Fatalf("ledger must be untouched by a gated execute: %+v", got)
	}
}

func TestAddDeduplicatesByPolicyID(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(testMR, anyMRContext(), store, nil)
	svc.Add(policy.ViolatedRule{ScanResultPolicyID: 1, PolicyName: "a"}).
		Add(policy.ViolatedRule{ScanResultPolicyID: 1, PolicyName: "a"},
			policy.ViolatedRule{ScanResultPolicyID: 2, PolicyName: "b"})
	if svc.Pending() != 2 {
		t.Fatalf("expected 2 pending rules, got %d", svc.Pending())
	}
}

type ledgerCounter struct {
	outcomes map[string]int
}

func (c *ledgerCounter) IncSyncEnqueued(string)          {}
func (c *ledgerCounter) IncSyncProcessed(string, string) {}
func (c *ledgerCounter) IncLedgerWrites(outcome string) {
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func TestExecuteCountsLedgerOutcomes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	counter := &ledgerCounter{}

	written := NewService(testMR, anyMRContext(), store, counter)
	written.Add(policy.ViolatedRule{ScanResultPolicyID: 1, PolicyName: "crit-findings"})
	if err := written.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if counter.outcomes["replaced"] != 1 {
		t.Fatalf("committed write not counted as replaced: %+v", counter.outcomes)
	}

	gated := NewService(testMR, platform.EvalContext{}, store, counter)
	gated.Add(policy.ViolatedRule{ScanResultPolicyID: 2, PolicyName: "license-check"})
	if err := gated.Execute(ctx); err != nil {
		t.Fatalf("gated execute: %v", err)
	}
	if counter.outcomes["skipped"] != 1 {
		t.Fatalf("gated write not counted as skipped: %+v", counter.outcomes)
	}
}

func TestProjectIndexTracksViolatingMRs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	other := platform.MergeRequest{ID: 8, ProjectID: 3}
	if err := store.Replace(ctx, testMR, []policy.ViolatedRule{{ScanResultPolicyID: 1, PolicyName: "a"}}); err != nil {
		t.Fatalf("replace mr 7: %v", err)
	}
	if err := store.Replace(ctx, other, []policy.ViolatedRule{{ScanResultPolicyID: 2, PolicyName: "b"}}); err != nil {
		t.Fatalf("replace mr 8: %v", err)
	}

	mrs, err := store.ViolatingMergeRequests(ctx, 3)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if !reflect.DeepEqual(mrs, []int64{7, 8}) {
		t.Fatalf("unexpected index: %+v", mrs)
	}
}
