package platform

import "time"

// Feature flag and licensed feature names evaluated by the policy engines.
const (
	FlagPolicyScope               = "security_policies_policy_scope"
	FlagVariablesPrecedence       = "security_policies_variables_precedence"
	FlagAnyMergeRequest           = "scan_result_any_merge_request"
	FlagBlockUnprotectingBranches = "scan_result_policies_block_unprotecting_branches"
	FlagPreventForcePushing       = "scan_result_policies_prevent_force_pushing"
	FlagUnenforceableNotification = "security_policy_unenforceable_notification"
	FlagCompliancePipeline        = "compliance_pipeline_in_policies"

	LicenseSecurityOrchestration = "security_orchestration_policies"
)

// FeatureFlags evaluates a flag for an actor (project or namespace id).
type FeatureFlags interface {
	Enabled(flag string, actorID int64) bool
}

// Licenses reports whether a licensed feature is available.
type Licenses interface {
	Allows(feature string) bool
}

// EvalContext is the capability set injected into every policy service in
// place of ambient global lookups, so fail-open and fail-closed branches are
// deterministic under test.
type EvalContext struct {
	Flags    FeatureFlags
	Licenses Licenses
	Now      func() time.Time
}

// FlagEnabled evaluates a feature flag; a missing evaluator means disabled.
func (c EvalContext) FlagEnabled(flag string, actorID int64) bool {
	if c.Flags == nil {
		return false
	}
	return c.Flags.Enabled(flag, actorID)
}

// Licensed checks a licensed feature; a missing evaluator means unlicensed.
func (c EvalContext) Licensed(feature string) bool {
	if c.Licenses == nil {
		return false
	}
	return c.Licenses.Allows(feature)
}

// Clock returns the context's notion of now.
func (c EvalContext) Clock() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

// StaticFlags enables a fixed flag set for every actor.
type StaticFlags map[string]bool

func (f StaticFlags) Enabled(flag string, _ int64) bool {
	return f[flag]
}

// StaticLicenses allows a fixed licensed feature set.
type StaticLicenses map[string]bool

func (l StaticLicenses) Allows(feature string) bool {
	return l[feature]
}

// FlagsFromList builds StaticFlags from configuration input.
func FlagsFromList(names []string) StaticFlags {
	out := make(StaticFlags, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// LicensesFromList builds StaticLicenses from configuration input.
func LicensesFromList(names []string) StaticLicenses {
	out := make(StaticLicenses, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
