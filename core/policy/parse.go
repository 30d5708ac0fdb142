package policy

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/guardplane/guardplane/core/infra/schema"
)

const documentSchemaFile = "schema/policy_document.schema.json"

//go:embed schema/*.json
var schemaFS embed.FS

// Parse decodes a YAML policy document and validates it against the embedded
// schema. Empty input yields an empty document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if len(data) == 0 {
		return doc, nil
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return doc, fmt.Errorf("parse policy document: %w", err)
	}
	if payload != nil {
		if err := schema.Validate("policy-document", schemaBytes(), payload); err != nil {
			return doc, err
		}
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse policy document: %w", err)
	}
	return doc, nil
}

// Serialize renders the document back to YAML, preserving list order.
func Serialize(doc Document) ([]byte, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize policy document: %w", err)
	}
	return out, nil
}

// ValidateDocument checks a document against the embedded schema and returns
// one line per validation failure. Nil means valid.
func ValidateDocument(doc Document) ([]string, error) {
	return schema.ValidationFailures("policy-document", schemaBytes(), doc)
}

func schemaBytes() []byte {
	data, err := schemaFS.ReadFile(documentSchemaFile)
	if err != nil {
		// The schema ships inside the binary; a read failure is a build defect.
		panic(fmt.Sprintf("embedded policy schema missing: %v", err))
	}
	return data
}
