package pipeline

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/guardplane/guardplane/core/policy"
)

//go:embed templates/*.yml
var templateFS embed.FS

// JobConfig is one CI job definition, keyed the way the job YAML is.
type JobConfig map[string]any

// scanDefaults are the base variables each templated scan starts from.
// Action-level variables layer on top of these, in an order decided by the
// precedence flag in ScanPipelineService.
var scanDefaults = map[policy.ScanType]map[string]string{
	policy.ScanSast: {
		"SAST_ANALYZER_IMAGE": "registry.example.com/analyzers/sast:latest",
		"SEARCH_MAX_DEPTH":    "4",
	},
	policy.ScanSastIAC: {
		"SAST_ANALYZER_IMAGE": "registry.example.com/analyzers/iac:latest",
	},
	policy.ScanSecretDetection: {
		"SECRET_DETECTION_ANALYZER_IMAGE": "registry.example.com/analyzers/secrets:latest",
		"SECRET_DETECTION_HISTORIC_SCAN":  "false",
	},
	policy.ScanContainerScanning: {
		"CS_ANALYZER_IMAGE": "registry.example.com/analyzers/container-scanning:latest",
	},
	policy.ScanDependencyScanning: {
		"DS_ANALYZER_IMAGE": "registry.example.com/analyzers/dependency-scanning:latest",
		"DS_EXCLUDED_PATHS": "spec, test, tests, tmp",
		"DS_SCHEMA_MODEL":   "15",
	},
}

func loadTemplate(t policy.ScanType) JobConfig {
	raw, err := templateFS.ReadFile("templates/" + t.String() + ".yml")
	if err != nil {
		panic(fmt.Sprintf("pipeline: template for %s not embedded: %v", t, err))
	}
	var cfg JobConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("pipeline: template for %s is not valid yaml: %v", t, err))
	}
	return cfg
}

// jobName derives the CI job name for a scan at a position within the
// action list. The index keeps repeated scans of the same type distinct.
func jobName(t policy.ScanType, index int) string {
	return strings.ReplaceAll(t.String(), "_", "-") + "-" + strconv.Itoa(index)
}

// ConfigService turns one scan action into its CI job definitions. Template
// scans expand from the embedded job templates, custom scans inline the
// caller's CI YAML, and anything unrecognized yields a placeholder job that
// surfaces the bad type instead of failing the whole pipeline build.
type ConfigService struct{}

// Execute returns the jobs for one action. vars is the already-resolved
// variable set for the job; custom jobs keep their own variables.
func (ConfigService) Execute(action policy.Action, vars map[string]string, index int) map[string]JobConfig {
	t := policy.ParseScanType(action.Scan)
	switch t {
	case policy.ScanSast, policy.ScanSastIAC, policy.ScanSecretDetection,
		policy.ScanContainerScanning, policy.ScanDependencyScanning:
		return map[string]JobConfig{jobName(t, index): templateJob(t, vars)}
	case policy.ScanCustom:
		return customJobs(action, index)
	case policy.ScanDAST:
		// On-demand scans are configured as a batch elsewhere. A stray DAST
		// action routed here still gets a visible placeholder.
		return placeholderJobs(action.Scan, index)
	case policy.ScanUnknown:
		return placeholderJobs(action.Scan, index)
	}
	return placeholderJobs(action.Scan, index)
}

func templateJob(t policy.ScanType, vars map[string]string) JobConfig {
	cfg := loadTemplate(t)
	out := make(JobConfig, len(cfg)+1)
	for k, v := range cfg {
		out[k] = v
	}
	if len(vars) > 0 {
		out["variables"] = cloneVars(vars)
	}
	return out
}

// customJobs parses the inline CI YAML carried by a custom action. Every
// top-level key becomes a job. A parse failure degrades to a placeholder
// instead of erroring, matching the unknown-scan behavior.
func customJobs(action policy.Action, index int) map[string]JobConfig {
	raw := action.CIConfiguration
	if strings.TrimSpace(raw) == "" {
		return placeholderJobs(action.Scan, index)
	}
	var doc map[string]JobConfig
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || len(doc) == 0 {
		return placeholderJobs(action.Scan, index)
	}
	return doc
}

func placeholderJobs(scan string, index int) map[string]JobConfig {
	name := scan
	if name == "" {
		name = "unknown"
	}
	return map[string]JobConfig{
		strings.ReplaceAll(name, "_", "-") + "-" + strconv.Itoa(index): {
			"script":        []string{fmt.Sprintf("echo unrecognized scan action %q", scan), "exit 1"},
			"allow_failure": true,
		},
	}
}

func cloneVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// mergeVars folds variable maps left to right, later maps winning on
// collision. Nil maps are skipped.
func mergeVars(maps ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
