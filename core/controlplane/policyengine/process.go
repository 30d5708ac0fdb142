package policyengine

import (
	"errors"
	"strings"

	"github.com/guardplane/guardplane/core/policy"
)

// Operation selects the mutation applied by ProcessService.
type Operation string

const (
	OperationAppend  Operation = "append"
	OperationReplace Operation = "replace"
	OperationRemove  Operation = "remove"
)

const (
	msgNameMismatch     = "Name should be same as the policy name"
	msgInvalidOperation = "Invalid operation"
	msgInvalidDocument  = "Invalid policy"
	msgValidateFailed   = "Unable to validate policy"
)

// Params describe one mutation of a policy document.
type Params struct {
	Policy    policy.Policy
	Kind      policy.Kind
	Name      string
	Operation Operation
}

// DocumentValidator checks a mutated document before it is handed back to
// the caller. A non-nil failure list rejects the mutation.
type DocumentValidator interface {
	ValidateDocument(policy.Document) ([]string, error)
}

type schemaValidator struct{}

func (schemaValidator) ValidateDocument(doc policy.Document) ([]string, error) {
	return policy.ValidateDocument(doc)
}

// ProcessService applies a single append/replace/remove mutation to a policy
// document. The input document is never modified; the mutated copy is only
// released on a fully valid result, so no partial write can escape.
type ProcessService struct {
	document  policy.Document
	params    Params
	validator DocumentValidator
}

// NewProcessService builds a mutator over a document snapshot, validating
// results against the embedded policy schema.
func NewProcessService(document policy.Document, params Params) *ProcessService {
	return &ProcessService{document: document, params: params, validator: schemaValidator{}}
}

// WithValidator overrides the document validator.
func (s *ProcessService) WithValidator(v DocumentValidator) *ProcessService {
	if v != nil {
		s.validator = v
	}
	return s
}

// Execute runs the mutation and returns a structured result. Mutation errors
// never surface as raw errors; they are converted at this boundary.
func (s *ProcessService) Execute() ProcessResult {
	params := s.params
	if name := strings.TrimSpace(params.Name); name != "" && name != params.Policy.Name && params.Operation != OperationReplace {
		// Replace is the only operation permitted to rename.
		return errorResult(msgNameMismatch)
	}

	lookup := params.Name
	if strings.TrimSpace(lookup) == "" {
		lookup = params.Policy.Name
	}

	var (
		mutated policy.Document
		err     error
	)
	switch params.Operation {
	case OperationAppend:
		mutated, err = policy.Append(s.document, params.Kind, params.Policy)
	case OperationReplace:
		if params.Name != "" && params.Name != params.Policy.Name && s.document.Exists(params.Kind, params.Policy.Name) {
			// Renaming onto a name already taken within the family.
			return errorResult(policy.ErrAlreadyExists.Error())
		}
		mutated, err = policy.Replace(s.document, params.Kind, lookup, params.Policy)
	case OperationRemove:
		mutated, err = policy.Remove(s.document, params.Kind, lookup)
	default:
		return errorResult(msgInvalidOperation)
	}
	if err != nil {
		return errorResult(mutationMessage(err))
	}

	failures, err := s.validator.ValidateDocument(mutated)
	if err != nil {
		return errorResult(msgValidateFailed)
	}
	if len(failures) > 0 {
		return ProcessResult{Status: StatusError, Message: msgInvalidDocument, Details: failures}
	}

	return ProcessResult{Status: StatusSuccess, Document: mutated}
}

func mutationMessage(err error) string {
	switch {
	case errors.Is(err, policy.ErrAlreadyExists):
		return policy.ErrAlreadyExists.Error()
	case errors.Is(err, policy.ErrNotFound):
		return policy.ErrNotFound.Error()
	case errors.Is(err, policy.ErrUnknownKind):
		return policy.ErrUnknownKind.Error()
	default:
		return err.Error()
	}
}

func errorResult(msg string) ProcessResult {
	return ProcessResult{Status: StatusError, Message: msg}
}
