// Package policyengine hosts the synchronous policy services: applicability
// scoping, document mutation, and policy lookup. All services are pure
// computation over an in-memory document; persistence belongs to callers.
package policyengine

import "github.com/guardplane/guardplane/core/policy"

// Status is the outcome discriminator of a service result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ProcessResult is the structured outcome of a document mutation. On success
// Document holds the mutated copy; on error the caller's document is
// untouched and Details may itemize validation failures.
type ProcessResult struct {
	Status   Status
	Message  string
	Details  []string
	Document policy.Document
}

// FetchResult is the outcome of a policy lookup. Absence is a successful
// result with a nil Policy, never an error.
type FetchResult struct {
	Status Status
	Policy *policy.Policy
}
