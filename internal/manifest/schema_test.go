// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package manifest_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioshell/helioshell/internal/manifest"
)

func TestGenerateSchema(t *testing.T) {
	data, err := manifest.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, manifest.GetSchemaID(), schema["$id"])
	assert.Equal(t, "Helioshell Plugin Descriptor", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema must have properties")
	assert.Contains(t, props, "id")
	assert.Contains(t, props, "entryBundleLocation")
	assert.Contains(t, props, "scopeName")
	assert.Contains(t, props, "declaredModules")
}

func TestValidateDescriptor_Valid(t *testing.T) {
	manifest.ResetSchemaCache()

	doc := `{
		"id": "weather-plugin",
		"entryBundleLocation": "remoteEntry.lua",
		"scopeName": "weatherPlugin",
		"declaredModules": [{"name": "./Widget"}]
	}`
	require.NoError(t, manifest.ValidateDescriptor([]byte(doc)))
}

func TestValidateDescriptor_Empty(t *testing.T) {
	err := manifest.ValidateDescriptor(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestValidateDescriptor_InvalidJSON(t *testing.T) {
	err := manifest.ValidateDescriptor([]byte(`{"id": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestValidateDescriptor_WrongTypes(t *testing.T) {
	doc := `{
		"id": "weather-plugin",
		"entryBundleLocation": "remoteEntry.lua",
		"scopeName": "weatherPlugin",
		"declaredModules": "not-an-array"
	}`
	err := manifest.ValidateDescriptor([]byte(doc))
	require.Error(t, err)
	assert.NotEmpty(t, manifest.FormatSchemaError(err))
}

func TestValidateCatalogue_ReportsPerEntry(t *testing.T) {
	doc := `{
		"good": {
			"id": "good",
			"entryBundleLocation": "good.lua",
			"scopeName": "good"
		},
		"bad": {
			"id": "bad",
			"entryBundleLocation": 42,
			"scopeName": "bad"
		}
	}`
	failures := manifest.ValidateCatalogue([]byte(doc))
	require.Len(t, failures, 1)
	assert.Contains(t, failures, "bad")
}

func TestValidateCatalogue_AllValid(t *testing.T) {
	doc := `{
		"only": {
			"id": "only",
			"entryBundleLocation": "only.lua",
			"scopeName": "only"
		}
	}`
	assert.Nil(t, manifest.ValidateCatalogue([]byte(doc)))
}

func TestValidateCatalogue_NonObjectRoot(t *testing.T) {
	failures := manifest.ValidateCatalogue([]byte(`[]`))
	require.Len(t, failures, 1)
	assert.Contains(t, failures, "")
}

func TestFormatSchemaError_Nil(t *testing.T) {
	assert.Empty(t, manifest.FormatSchemaError(nil))
}
