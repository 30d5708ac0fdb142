package policy

// Policy is a named, typed entry in a policy document. Its kind is given by
// the document list that holds it; name is unique within the kind's family.
type Policy struct {
	Name             string            `yaml:"name" json:"name"`
	Description      string            `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled          bool              `yaml:"enabled" json:"enabled"`
	PolicyScope      *Scope            `yaml:"policy_scope,omitempty" json:"policy_scope,omitempty"`
	Rules            []Rule            `yaml:"rules,omitempty" json:"rules,omitempty"`
	Actions          []Action          `yaml:"actions,omitempty" json:"actions,omitempty"`
	ApprovalSettings *ApprovalSettings `yaml:"approval_settings,omitempty" json:"approval_settings,omitempty"`
}

// Rule is a condition attached to a policy. Rules are immutable once part of
// a policy version; updates replace the whole policy.
type Rule struct {
	Type       string   `yaml:"type,omitempty" json:"type,omitempty"`
	Branches   []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	BranchType string   `yaml:"branch_type,omitempty" json:"branch_type,omitempty"`
}

// Action is a declarative scan directive consumed at pipeline-creation time.
// Actions are regenerated on policy update, never patched.
type Action struct {
	Scan                string            `yaml:"scan" json:"scan"`
	Variables           map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
	Template            string            `yaml:"template,omitempty" json:"template,omitempty"`
	CIConfiguration     string            `yaml:"ci_configuration,omitempty" json:"ci_configuration,omitempty"`
	CIConfigurationPath string            `yaml:"ci_configuration_path,omitempty" json:"ci_configuration_path,omitempty"`
}

// ApprovalSettings carries the enforcement flags evaluated by the branch
// applicability services.
type ApprovalSettings struct {
	BlockUnprotectingBranches bool `yaml:"block_unprotecting_branches,omitempty" json:"block_unprotecting_branches,omitempty"`
	PreventForcePushing       bool `yaml:"prevent_force_pushing,omitempty" json:"prevent_force_pushing,omitempty"`
	PreventApprovalByAuthor   bool `yaml:"prevent_approval_by_author,omitempty" json:"prevent_approval_by_author,omitempty"`
}

// Scope restricts where a policy applies. An absent or empty scope means the
// policy applies everywhere its configuration is attached.
type Scope struct {
	ComplianceFrameworks []FrameworkRef `yaml:"compliance_frameworks,omitempty" json:"compliance_frameworks,omitempty"`
	Projects             *ScopeProjects `yaml:"projects,omitempty" json:"projects,omitempty"`
}

// ScopeProjects is the include/exclude project filter. Exclusion takes
// precedence over inclusion.
type ScopeProjects struct {
	Including []ProjectRef `yaml:"including,omitempty" json:"including,omitempty"`
	Excluding []ProjectRef `yaml:"excluding,omitempty" json:"excluding,omitempty"`
}

// FrameworkRef references a compliance framework by id.
type FrameworkRef struct {
	ID int64 `yaml:"id" json:"id"`
}

// ProjectRef references a project by id.
type ProjectRef struct {
	ID int64 `yaml:"id" json:"id"`
}

// ViolatedRule identifies the policy behind a rule that a merge request
// currently fails to satisfy.
type ViolatedRule struct {
	ScanResultPolicyID int64  `json:"scan_result_policy_id"`
	PolicyName         string `json:"policy_name,omitempty"`
}
