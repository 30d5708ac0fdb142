package policyengine

import "github.com/guardplane/guardplane/core/policy"

// FetchService is the read-only lookup of a named policy. Result-family
// kinds search across the whole family; other kinds match exactly.
type FetchService struct {
	document policy.Document
	kind     policy.Kind
	name     string
}

// NewFetchService builds a lookup over a document snapshot.
func NewFetchService(document policy.Document, kind policy.Kind, name string) FetchService {
	return FetchService{document: document, kind: kind, name: name}
}

// Execute returns the first matching policy, or nil when absent. Absence is
// a valid, successful result.
func (s FetchService) Execute() FetchResult {
	kind, idx, ok := s.document.Find(s.kind, s.name)
	if !ok {
		return FetchResult{Status: StatusSuccess}
	}
	p := s.document.List(kind)[idx]
	return FetchResult{Status: StatusSuccess, Policy: &p}
}
