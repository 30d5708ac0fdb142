package policy

import (
	"errors"
	"testing"
)

func named(names ...string) []Policy {
	out := make([]Policy, 0, len(names))
	for _, n := range names {
		out = append(out, Policy{Name: n, Enabled: true})
	}
	return out
}

func TestAppendAddsToTail(t *testing.T) {
	doc := Document{ScanExecution: named("a", "b")}
	out, err := Append(doc, KindScanExecution, Policy{Name: "c", Enabled: true})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := out.ScanExecution[2].Name; got != "c" {
		t.Fatalf("expected c at tail, got %s", got)
	}
	if len(doc.ScanExecution) != 2 {
		t.Fatal("append must not mutate the input document")
	}
}

func TestAppendDuplicateNameFails(t *testing.T) {
	doc := Document{ScanExecution: named("foo")}
	out, err := Append(doc, KindScanExecution, Policy{Name: "foo", Enabled: true})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if len(out.ScanExecution) != 1 {
		t.Fatal("failed append must leave document unchanged")
	}
}

func TestAppendDuplicateAcrossResultFamily(t *testing.T) {
	doc := Document{ScanResult: named("shared")}
	if _, err := Append(doc, KindApproval, Policy{Name: "shared", Enabled: true}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("approval append must collide with scan_result name, got %v", err)
	}
	// scan_execution_policy does not share the family namespace.
	if _, err := Append(doc, KindScanExecution, Policy{Name: "shared", Enabled: true}); err != nil {
		t.Fatalf("scan execution append should succeed: %v", err)
	}
}

func TestReplacePreservesOrder(t *testing.T) {
	doc := Document{ScanResult: named("a", "b", "c")}
	out, err := Replace(doc, KindScanResult, "b", Policy{Name: "b", Enabled: false, Description: "updated"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, n := range want {
		if out.ScanResult[i].Name != n {
			t.Fatalf("sibling order changed: %+v", out.ScanResult)
		}
	}
	if out.ScanResult[1].Description != "updated" {
		t.Fatal("replacement not applied in place")
	}
	if doc.ScanResult[1].Description != "" {
		t.Fatal("replace must not mutate the input document")
	}
}

func TestReplaceMigrationMovesToTail(t *testing.T) {
	doc := Document{
		ScanResult: named("a", "mig", "c"),
		Approval:   named("x"),
	}
	out, err := Replace(doc, KindApproval, "mig", Policy{Name: "mig", Enabled: true})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(out.ScanResult) != 2 || out.ScanResult[0].Name != "a" || out.ScanResult[1].Name != "c" {
		t.Fatalf("migrated policy still in scan_result list: %+v", out.ScanResult)
	}
	if len(out.Approval) != 2 || out.Approval[1].Name != "mig" {
		t.Fatalf("migrated policy not appended to approval tail: %+v", out.Approval)
	}
}

func TestReplaceReverseMigrationStaysInPlace(t *testing.T) {
	// approval -> scan_result is not a sanctioned migration: the entry is
	// overwritten where it lives.
	doc := Document{Approval: named("a", "keep", "c")}
	out, err := Replace(doc, KindScanResult, "keep", Policy{Name: "keep", Enabled: false})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if len(out.ScanResult) != 0 {
		t.Fatalf("policy must not move into scan_result: %+v", out.ScanResult)
	}
	if out.Approval[1].Name != "keep" || out.Approval[1].Enabled {
		t.Fatalf("expected in-place overwrite: %+v", out.Approval)
	}
}

func TestReplaceMissingFails(t *testing.T) {
	doc := Document{ScanResult: named("a")}
	if _, err := Replace(doc, KindScanResult, "nope", Policy{Name: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveDeletesAllWithName(t *testing.T) {
	doc := Document{ScanExecution: []Policy{
		{Name: "dup", Enabled: true},
		{Name: "other", Enabled: true},
		{Name: "dup", Enabled: false},
	}}
	out, err := Remove(doc, KindScanExecution, "dup")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(out.ScanExecution) != 1 || out.ScanExecution[0].Name != "other" {
		t.Fatalf("unexpected survivors: %+v", out.ScanExecution)
	}
}

func TestRemoveExactKindOnly(t *testing.T) {
	doc := Document{ScanResult: named("fam")}
	if _, err := Remove(doc, KindApproval, "fam"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove must not search across the family, got %v", err)
	}
}

func TestFindFamilyLookupOrder(t *testing.T) {
	doc := Document{
		ScanResult: named("same"),
		Approval:   named("same"),
	}
	kind, idx, ok := doc.Find(KindApproval, "same")
	if !ok || kind != KindScanResult || idx != 0 {
		t.Fatalf("legacy list must win the family lookup: kind=%s idx=%d ok=%v", kind, idx, ok)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	doc := Document{}
	if _, err := Append(doc, Kind("pipeline_policy"), Policy{Name: "x"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
