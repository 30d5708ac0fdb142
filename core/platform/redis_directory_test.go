package platform

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/guardplane/guardplane/core/policy"
)

func newTestDirectory(t *testing.T) *RedisDirectory {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDirectoryWithClient(client)
}

func TestProjectRoundTrip(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	want := Project{ID: 11, FullPath: "acme/api", NamespaceID: 3, DefaultBranch: "main"}
	if err := dir.PutProject(ctx, want); err != nil {
		t.Fatalf("put project: %v", err)
	}
	got, err := dir.Project(ctx, 11)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got != want {
		t.Fatalf("project mismatch: %+v != %+v", got, want)
	}
	if _, err := dir.Project(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRootAncestorWalk(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	seed := []Namespace{
		{ID: 1, FullPath: "acme"},
		{ID: 2, FullPath: "acme/platform", ParentID: 1},
		{ID: 3, FullPath: "acme/platform/security", ParentID: 2},
	}
	for _, ns := range seed {
		if err := dir.PutNamespace(ctx, ns); err != nil {
			t.Fatalf("put namespace: %v", err)
		}
	}
	root, err := dir.RootAncestor(ctx, 3)
	if err != nil {
		t.Fatalf("root ancestor: %v", err)
	}
	if root.ID != 1 {
		t.Fatalf("expected root 1, got %d", root.ID)
	}
}

func TestEachProjectPagesInOrder(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	for id := int64(1); id <= 7; id++ {
		if err := dir.PutProject(ctx, Project{ID: id, NamespaceID: 5}); err != nil {
			t.Fatalf("put project: %v", err)
		}
	}
	var seen []int64
	err := dir.EachProject(ctx, 5, 3, func(p Project) error {
		seen = append(seen, p.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("each project: %v", err)
	}
	if len(seen) != 7 {
		t.Fatalf("expected 7 projects, saw %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("ids not ascending: %v", seen)
		}
	}
}

func TestEachProjectReachesNestedSubgroups(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	namespaces := []Namespace{
		{ID: 1, FullPath: "acme"},
		{ID: 2, FullPath: "acme/platform", ParentID: 1},
		{ID: 3, FullPath: "acme/platform/security", ParentID: 2},
	}
	for _, ns := range namespaces {
		if err := dir.PutNamespace(ctx, ns); err != nil {
			t.Fatalf("put namespace: %v", err)
		}
	}
	if err := dir.PutProject(ctx, Project{ID: 10, NamespaceID: 1}); err != nil {
		t.Fatalf("put project 10: %v", err)
	}
	if err := dir.PutProject(ctx, Project{ID: 20, NamespaceID: 2}); err != nil {
		t.Fatalf("put project 20: %v", err)
	}
	if err := dir.PutProject(ctx, Project{ID: 30, NamespaceID: 3}); err != nil {
		t.Fatalf("put project 30: %v", err)
	}

	collect := func(namespaceID int64) []int64 {
		var out []int64
		err := dir.EachProject(ctx, namespaceID, 10, func(p Project) error {
			out = append(out, p.ID)
			return nil
		})
		if err != nil {
			t.Fatalf("each project under %d: %v", namespaceID, err)
		}
		return out
	}

	// The root sees every project in the subtree, not just direct children.
	root := collect(1)
	if len(root) != 3 || root[0] != 10 || root[1] != 20 || root[2] != 30 {
		t.Fatalf("root enumeration missed nested projects: %v", root)
	}
	mid := collect(2)
	if len(mid) != 2 || mid[0] != 20 || mid[1] != 30 {
		t.Fatalf("sub-group enumeration wrong: %v", mid)
	}
	leaf := collect(3)
	if len(leaf) != 1 || leaf[0] != 30 {
		t.Fatalf("leaf enumeration wrong: %v", leaf)
	}
}

func TestEachProjectStopsOnCallbackError(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		if err := dir.PutProject(ctx, Project{ID: id, NamespaceID: 9}); err != nil {
			t.Fatalf("put project: %v", err)
		}
	}
	boom := errors.New("boom")
	count := 0
	err := dir.EachProject(ctx, 9, 2, func(Project) error {
		count++
		if count == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if count != 2 {
		t.Fatalf("iteration did not stop: %d", count)
	}
}

func TestConfigurationOwnershipValidation(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.SaveConfiguration(ctx, Configuration{ID: 1}); err == nil {
		t.Fatal("expected error for unowned configuration")
	}
	if err := dir.SaveConfiguration(ctx, Configuration{ID: 1, ProjectID: 2, NamespaceID: 3}); err == nil {
		t.Fatal("expected error for doubly-owned configuration")
	}
}

func TestConfigurationsForProjectInheritance(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.PutNamespace(ctx, Namespace{ID: 1, FullPath: "acme"}); err != nil {
		t.Fatalf("put namespace: %v", err)
	}
	if err := dir.PutNamespace(ctx, Namespace{ID: 2, FullPath: "acme/sub", ParentID: 1}); err != nil {
		t.Fatalf("put namespace: %v", err)
	}
	if err := dir.PutProject(ctx, Project{ID: 10, NamespaceID: 2}); err != nil {
		t.Fatalf("put project: %v", err)
	}

	doc := policy.Document{ScanResult: []policy.Policy{{Name: "p", Enabled: true}}}
	configs := []Configuration{
		{ID: 100, ProjectID: 10, Document: doc},
		{ID: 200, NamespaceID: 2, Document: doc},
		{ID: 300, NamespaceID: 1, Document: doc},
	}
	for _, cfg := range configs {
		if err := dir.SaveConfiguration(ctx, cfg); err != nil {
			t.Fatalf("save configuration: %v", err)
		}
	}

	got, err := dir.ConfigurationsForProject(ctx, 10)
	if err != nil {
		t.Fatalf("configurations for project: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 configurations, got %d", len(got))
	}
	if got[0].ID != 100 || got[1].ID != 200 || got[2].ID != 300 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(got[0].Document.ScanResult) != 1 {
		t.Fatal("document lost in round trip")
	}
}

func TestDirtyConfigurationLifecycle(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	cfg := Configuration{ID: 7, ProjectID: 1}
	if err := dir.SaveConfiguration(ctx, cfg); err != nil {
		t.Fatalf("save configuration: %v", err)
	}
	dirty, err := dir.DirtyConfigurations(ctx, 10)
	if err != nil {
		t.Fatalf("dirty configurations: %v", err)
	}
	if len(dirty) != 1 || dirty[0].ID != 7 {
		t.Fatalf("expected config 7 dirty, got %+v", dirty)
	}
	if err := dir.ClearDirty(ctx, 7); err != nil {
		t.Fatalf("clear dirty: %v", err)
	}
	dirty, err = dir.DirtyConfigurations(ctx, 10)
	if err != nil {
		t.Fatalf("dirty configurations: %v", err)
	}
	if len(dirty) != 0 {
		t.Fatalf("expected no dirty configs, got %+v", dirty)
	}
}

func TestApprovalRuleLinkIdempotent(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	if err := dir.LinkApprovalRules(ctx, 42, 7); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := dir.LinkApprovalRules(ctx, 42, 7); err != nil {
		t.Fatalf("relink: %v", err)
	}
	id, err := dir.ApprovalRuleLink(ctx, 42)
	if err != nil {
		t.Fatalf("read link: %v", err)
	}
	if id != 7 {
		t.Fatalf("unexpected link: %d", id)
	}
}
