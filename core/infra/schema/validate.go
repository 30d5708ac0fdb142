package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks a value against a JSON schema payload. The returned error
// wraps the validator's failure tree.
func Validate(id string, schema []byte, value any) error {
	compiled, err := compile(id, schema)
	if err != nil {
		return err
	}
	payload, err := normalize(value)
	if err != nil {
		return fmt.Errorf("normalize payload: %w", err)
	}
	if err := compiled.Validate(payload); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidationFailures validates and flattens the failure tree into one line per
// leaf cause, suitable for a structured error details payload. A nil slice
// means the value is valid.
func ValidationFailures(id string, schema []byte, value any) ([]string, error) {
	compiled, err := compile(id, schema)
	if err != nil {
		return nil, err
	}
	payload, err := normalize(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	err = compiled.Validate(payload)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	failures := map[string]struct{}{}
	collectLeaves(ve, failures)
	out := make([]string, 0, len(failures))
	for f := range failures {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func collectLeaves(ve *jsonschema.ValidationError, into map[string]struct{}) {
	if ve == nil {
		return
	}
	if len(ve.Causes) == 0 {
		loc := strings.TrimSpace(ve.InstanceLocation)
		if loc == "" {
			loc = "/"
		}
		into[fmt.Sprintf("property '%s' %s", loc, ve.Message)] = struct{}{}
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, into)
	}
}

func compile(id string, schema []byte) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	if strings.TrimSpace(id) == "" {
		id = "schema"
	}
	resourceID := "inmemory://" + id
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

func normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, err
		}
		return out, nil
	case []byte:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		// Round-trip through JSON so typed structs validate like documents.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
