package policy

import (
	"strings"
	"testing"
)

const sampleDocument = `
scan_execution_policy:
  - name: nightly scans
    enabled: true
    rules:
      - type: pipeline
        branches: ["main", "release/*"]
    actions:
      - scan: sast
      - scan: secret_detection
        variables:
          SECRET_DETECTION_HISTORIC_SCAN: "true"
scan_result_policy:
  - name: block criticals
    enabled: true
    policy_scope:
      projects:
        excluding:
          - id: 9
    approval_settings:
      block_unprotecting_branches: true
`

func TestParseSampleDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.ScanExecution) != 1 || len(doc.ScanResult) != 1 {
		t.Fatalf("unexpected document shape: %+v", doc)
	}
	p := doc.ScanExecution[0]
	if p.Name != "nightly scans" || !p.Enabled {
		t.Fatalf("unexpected policy: %+v", p)
	}
	if len(p.Actions) != 2 || p.Actions[1].Variables["SECRET_DETECTION_HISTORIC_SCAN"] != "true" {
		t.Fatalf("unexpected actions: %+v", p.Actions)
	}
	sr := doc.ScanResult[0]
	if sr.PolicyScope == nil || sr.PolicyScope.Projects == nil || sr.PolicyScope.Projects.Excluding[0].ID != 9 {
		t.Fatalf("unexpected scope: %+v", sr.PolicyScope)
	}
	if sr.ApprovalSettings == nil || !sr.ApprovalSettings.BlockUnprotectingBranches {
		t.Fatalf("unexpected approval settings: %+v", sr.ApprovalSettings)
	}
}

func TestParseEmptyInput(t *testing.T) {
	doc, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !doc.Empty() {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}

func TestParseRejectsUnknownTopLevelKey(t *testing.T) {
	_, err := Parse([]byte("pipeline_policy:\n  - name: x\n    enabled: true\n"))
	if err == nil {
		t.Fatal("expected schema rejection")
	}
}

func TestParseRejectsUnnamedPolicy(t *testing.T) {
	_, err := Parse([]byte("scan_execution_policy:\n  - enabled: true\n"))
	if err == nil {
		t.Fatal("expected schema rejection")
	}
}

func TestSerializeRoundTripKeepsOrder(t *testing.T) {
	doc := Document{ScanExecution: named("first", "second", "third")}
	data, err := Serialize(doc)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	first := strings.Index(string(data), "first")
	second := strings.Index(string(data), "second")
	third := strings.Index(string(data), "third")
	if !(first < second && second < third) {
		t.Fatalf("order not preserved:\n%s", data)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(back.ScanExecution) != 3 || back.ScanExecution[2].Name != "third" {
		t.Fatalf("round trip lost data: %+v", back.ScanExecution)
	}
}

func TestValidateDocumentReportsFailures(t *testing.T) {
	doc := Document{ScanExecution: []Policy{{Name: ""}}}
	failures, err := ValidateDocument(doc)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(failures) == 0 {
		t.Fatal("expected validation failures for empty name")
	}
}

func TestValidateDocumentAcceptsValid(t *testing.T) {
	doc := Document{Approval: named("ok")}
	failures, err := ValidateDocument(doc)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if failures != nil {
		t.Fatalf("unexpected failures: %v", failures)
	}
}
