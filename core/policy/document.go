package policy

import (
	"errors"
	"strings"
)

// Document is the root policy document: one ordered list of policies per
// kind. Mutations are expressed as pure functions returning a fresh document;
// the receiver is never modified, so a failed mutation leaves no partial
// state behind.
type Document struct {
	ScanExecution []Policy `yaml:"scan_execution_policy,omitempty" json:"scan_execution_policy,omitempty"`
	ScanResult    []Policy `yaml:"scan_result_policy,omitempty" json:"scan_result_policy,omitempty"`
	Approval      []Policy `yaml:"approval_policy,omitempty" json:"approval_policy,omitempty"`
}

var (
	// ErrAlreadyExists is returned when an append collides within a family.
	ErrAlreadyExists = errors.New("Policy already exists with same name")
	// ErrNotFound is returned when replace/remove target no existing policy.
	ErrNotFound = errors.New("Policy does not exist")
	// ErrUnknownKind is returned for kinds outside the document schema.
	ErrUnknownKind = errors.New("Invalid policy type")
)

// List returns the policy list for a kind. The returned slice is shared;
// callers must not mutate it.
func (d Document) List(kind Kind) []Policy {
	switch kind {
	case KindScanExecution:
		return d.ScanExecution
	case KindScanResult:
		return d.ScanResult
	case KindApproval:
		return d.Approval
	}
	return nil
}

// Find locates a policy by name within the family of the given kind,
// honoring the family lookup order. It returns the kind whose list holds the
// match and the index within that list.
func (d Document) Find(kind Kind, name string) (Kind, int, bool) {
	for _, k := range kind.Family() {
		for i, p := range d.List(k) {
			if p.Name == name {
				return k, i, true
			}
		}
	}
	return "", 0, false
}

// Exists reports whether a policy with the name exists within the kind's family.
func (d Document) Exists(kind Kind, name string) bool {
	_, _, ok := d.Find(kind, name)
	return ok
}

// Empty reports whether no list holds any policy.
func (d Document) Empty() bool {
	return len(d.ScanExecution) == 0 && len(d.ScanResult) == 0 && len(d.Approval) == 0
}

// Append adds p to the tail of kind's list. It fails when a policy of the
// same name already exists within the kind's family.
func Append(d Document, kind Kind, p Policy) (Document, error) {
	if !kind.Valid() {
		return d, ErrUnknownKind
	}
	if strings.TrimSpace(p.Name) == "" {
		return d, ErrNotFound
	}
	if d.Exists(kind, p.Name) {
		return d, ErrAlreadyExists
	}
	return d.withList(kind, append(cloneList(d.List(kind)), p)), nil
}

// Replace swaps the policy named name within kind's family for p.
//
// When the resolved policy lives in scan_result_policy and the caller asked
// for approval_policy, the entry migrates: it is removed from the legacy list
// and appended to the tail of approval_policy (the one sanctioned type
// migration; order is not preserved). Any other resolution overwrites in
// place at the original index, leaving sibling order untouched.
func Replace(d Document, kind Kind, name string, p Policy) (Document, error) {
	if !kind.Valid() {
		return d, ErrUnknownKind
	}
	foundKind, idx, ok := d.Find(kind, name)
	if !ok {
		return d, ErrNotFound
	}
	if kind == KindApproval && foundKind == KindScanResult {
		trimmed := cloneList(d.ScanResult)
		trimmed = append(trimmed[:idx], trimmed[idx+1:]...)
		out := d.withList(KindScanResult, trimmed)
		return out.withList(KindApproval, append(cloneList(out.Approval), p)), nil
	}
	list := cloneList(d.List(foundKind))
	list[idx] = p
	return d.withList(foundKind, list), nil
}

// Remove deletes every policy named name from kind's list. Unlike Replace it
// resolves against the exact kind, not the family. Matching more than one
// entry only happens when duplicate names slipped past the append guard; all
// of them go.
func Remove(d Document, kind Kind, name string) (Document, error) {
	if !kind.Valid() {
		return d, ErrUnknownKind
	}
	list := d.List(kind)
	kept := make([]Policy, 0, len(list))
	for _, p := range list {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(list) {
		return d, ErrNotFound
	}
	if len(kept) == 0 {
		kept = nil
	}
	return d.withList(kind, kept), nil
}

func (d Document) withList(kind Kind, list []Policy) Document {
	switch kind {
	case KindScanExecution:
		d.ScanExecution = list
	case KindScanResult:
		d.ScanResult = list
	case KindApproval:
		d.Approval = list
	}
	return d
}

func cloneList(list []Policy) []Policy {
	if list == nil {
		return nil
	}
	out := make([]Policy, len(list))
	copy(out, list)
	return out
}
