// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache holds the compiled schema to avoid recompilation.
var schemaCache *jschema.Schema

// GenerateSchema generates a JSON Schema from the PluginDescriptor struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&PluginDescriptor{})

	schema.ID = jsonschema.ID(GetSchemaID())
	schema.Title = "Helioshell Plugin Descriptor"
	schema.Description = "Schema for plugin descriptors served by the provisioning API"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// ValidateDescriptor validates one JSON descriptor against the schema.
func ValidateDescriptor(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("descriptor data is empty")
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	sch, err := getCompiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidateCatalogue validates a full catalogue document (a JSON object
// keyed by plugin id). It returns one error per failing entry, keyed by
// the catalogue key, so a single malformed descriptor surfaces without
// masking the rest.
func ValidateCatalogue(data []byte) map[string]error {
	var catalogue map[string]json.RawMessage
	if err := json.Unmarshal(data, &catalogue); err != nil {
		return map[string]error{"": fmt.Errorf("catalogue root must be a JSON object: %w", err)}
	}

	failures := make(map[string]error)
	for key, raw := range catalogue {
		if err := ValidateDescriptor(raw); err != nil {
			failures[key] = err
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return failures
}

// getCompiledSchema returns the cached compiled schema or compiles it.
func getCompiledSchema() (*jschema.Schema, error) {
	if schemaCache != nil {
		return schemaCache, nil
	}

	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaData); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	schemaCache = sch
	return sch, nil
}

// ResetSchemaCache clears the cached schema. Used for testing.
func ResetSchemaCache() {
	schemaCache = nil
}

// GetSchemaID returns the schema $id for descriptor documents.
func GetSchemaID() string {
	return "https://helioshell.dev/schemas/descriptor.schema.json"
}

// FormatSchemaError formats a schema validation error for display.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.Contains(msg, "schema validation failed:") {
		msg = strings.TrimPrefix(msg, "schema validation failed: ")
	}
	return msg
}
