package pipeline

import (
	"strings"
	"testing"

	"github.com/guardplane/guardplane/core/policy"
)

func TestTemplateJobRendersEmbeddedTemplate(t *testing.T) {
	jobs := ConfigService{}.Execute(policy.Action{Scan: "sast"}, map[string]string{"SEARCH_MAX_DEPTH": "8"}, 2)
	cfg, ok := jobs["sast-2"]
	if !ok {
		t.Fatalf("expected sast-2 job, got %+v", jobs)
	}
	if cfg["stage"] != "test" {
		t.Fatalf("template stage not carried over: %+v", cfg)
	}
	vars, _ := cfg["variables"].(map[string]string)
	if vars["SEARCH_MAX_DEPTH"] != "8" {
		t.Fatalf("variables not applied: %+v", cfg)
	}
}

func TestAllTemplatedScansHaveTemplates(t *testing.T) {
	for _, scan := range []string{"sast", "sast_iac", "secret_detection", "container_scanning", "dependency_scanning"} {
		jobs := ConfigService{}.Execute(policy.Action{Scan: scan}, nil, 0)
		name := strings.ReplaceAll(scan, "_", "-") + "-0"
		cfg, ok := jobs[name]
		if !ok {
			t.Fatalf("%s: expected job %q, got %+v", scan, name, jobs)
		}
		if _, ok := cfg["script"]; !ok {
			t.Fatalf("%s: template missing script: %+v", scan, cfg)
		}
	}
}

func TestCustomActionInlinesJobs(t *testing.T) {
	action := policy.Action{Scan: "custom", CIConfiguration: "audit:\n  stage: test\n  script:\n    - make audit\nreport:\n  script:\n    - make report\n"}
	jobs := ConfigService{}.Execute(action, nil, 0)
	if len(jobs) != 2 {
		t.Fatalf("expected two inline jobs, got %+v", jobs)
	}
	if jobs["audit"]["stage"] != "test" {
		t.Fatalf("inline job lost its config: %+v", jobs["audit"])
	}
}

func TestCustomActionBadYamlDegrades(t *testing.T) {
	action := policy.Action{Scan: "custom", CIConfiguration: ":\n -- not yaml"}
	jobs := ConfigService{}.Execute(action, nil, 3)
	cfg, ok := jobs["custom-3"]
	if !ok {
		t.Fatalf("expected placeholder job, got %+v", jobs)
	}
	if cfg["allow_failure"] != true {
		t.Fatalf("placeholder must be allow_failure: %+v", cfg)
	}
}

func TestUnknownScanProducesPlaceholder(t *testing.T) {
	jobs := ConfigService{}.Execute(policy.Action{Scan: "weird_scan"}, nil, 1)
	cfg, ok := jobs["weird-scan-1"]
	if !ok {
		t.Fatalf("expected placeholder keyed by raw type, got %+v", jobs)
	}
	script, _ := cfg["script"].([]string)
	if len(script) == 0 || !strings.Contains(script[0], "weird_scan") {
		t.Fatalf("placeholder must echo the raw type: %+v", cfg)
	}
}
