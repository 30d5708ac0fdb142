package pipeline

import (
	"github.com/guardplane/guardplane/core/platform"
	"github.com/guardplane/guardplane/core/policy"
)

// Result is the expansion of a policy's scan actions. PipelineScan and
// OnDemand never share a job, and Variables carries the per-job variable
// assignments that take precedence over anything baked into the job config.
type Result struct {
	PipelineScan map[string]JobConfig
	OnDemand     map[string]JobConfig
	Variables    map[string]map[string]string
}

// OnDemandConfigurator builds job configs for on-demand scans. The batch is
// handed over whole because on-demand runners schedule against external
// scanner profiles, not pipeline stages.
type OnDemandConfigurator interface {
	Configure(actions []policy.Action) map[string]JobConfig
}

// defaultOnDemand renders placeholder on-demand jobs. Deployments with a real
// scanner fleet inject their own configurator.
type defaultOnDemand struct{}

func (defaultOnDemand) Configure(actions []policy.Action) map[string]JobConfig {
	jobs := make(map[string]JobConfig, len(actions))
	for i, action := range actions {
		t := policy.ParseScanType(action.Scan)
		cfg := JobConfig{
			"stage":  "dast",
			"script": []string{"echo on-demand scan scheduled"},
		}
		if len(action.Variables) > 0 {
			cfg["variables"] = cloneVars(action.Variables)
		}
		jobs[jobName(t, i)+"-on-demand"] = cfg
	}
	return jobs
}

// ScanPipelineService expands a policy's scan actions into CI configuration.
// Custom scans are admitted only when the caller allows custom CI, the
// compliance pipeline feature is on, and the namespace setting permits it.
type ScanPipelineService struct {
	namespace     platform.Namespace
	evalCtx       platform.EvalContext
	allowCustomCI bool
	config        ConfigService
	onDemand      OnDemandConfigurator
}

// NewScanPipelineService builds the expander for one namespace context.
func NewScanPipelineService(namespace platform.Namespace, evalCtx platform.EvalContext, allowCustomCI bool) *ScanPipelineService {
	return &ScanPipelineService{
		namespace:     namespace,
		evalCtx:       evalCtx,
		allowCustomCI: allowCustomCI,
		onDemand:      defaultOnDemand{},
	}
}

// WithOnDemandConfigurator overrides the on-demand collaborator.
func (s *ScanPipelineService) WithOnDemandConfigurator(c OnDemandConfigurator) *ScanPipelineService {
	if c != nil {
		s.onDemand = c
	}
	return s
}

func (s *ScanPipelineService) customAllowed() bool {
	return s.allowCustomCI &&
		s.evalCtx.FlagEnabled(platform.FlagCompliancePipeline, s.namespace.ID) &&
		s.namespace.AllowCustomCI
}

func (s *ScanPipelineService) admitted(action policy.Action) bool {
	t := policy.ParseScanType(action.Scan)
	switch {
	case t.Templated() || t.OnDemand():
		return true
	case t == policy.ScanCustom:
		return s.customAllowed()
	}
	return false
}

// Execute filters, partitions, and expands the actions. Job configs from
// later actions win on name collision.
func (s *ScanPipelineService) Execute(actions []policy.Action) Result {
	res := Result{
		PipelineScan: map[string]JobConfig{},
		OnDemand:     map[string]JobConfig{},
		Variables:    map[string]map[string]string{},
	}

	var pipelineActions, onDemandActions []policy.Action
	for _, action := range actions {
		if !s.admitted(action) {
			continue
		}
		if policy.ParseScanType(action.Scan).OnDemand() {
			onDemandActions = append(onDemandActions, action)
		} else {
			pipelineActions = append(pipelineActions, action)
		}
	}

	precedence := s.evalCtx.FlagEnabled(platform.FlagVariablesPrecedence, s.namespace.ID)
	for i, action := range pipelineActions {
		t := policy.ParseScanType(action.Scan)
		base := scanDefaults[t]

		var jobVars map[string]string
		if precedence {
			// Action variables win: they ride the variables layer, which
			// overrides anything inside the generated job config.
			jobVars = base
		} else {
			// Legacy path: scan defaults land last and can shadow the
			// action's own variables.
			jobVars = mergeVars(action.Variables, base)
		}

		jobs := s.config.Execute(action, jobVars, i)
		for name, cfg := range jobs {
			res.PipelineScan[name] = cfg
			if precedence && len(action.Variables) > 0 {
				res.Variables[name] = mergeVars(base, action.Variables)
			}
		}
	}

	for name, cfg := range s.onDemand.Configure(onDemandActions) {
		res.OnDemand[name] = cfg
	}
	return res
}
