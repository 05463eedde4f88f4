// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogue(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogue.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runValidate(t *testing.T, path string) (string, string, error) {
	t.Helper()
	cmd := NewValidateCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidate_ValidCatalogue(t *testing.T) {
	path := writeCatalogue(t, `{
		"weather-plugin": {
			"id": "weather-plugin",
			"entryBundleLocation": "entry.lua",
			"scopeName": "weatherPlugin",
			"declaredModules": [{"name": "./Widget"}]
		}
	}`)

	stdout, _, err := runValidate(t, path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "valid")
}

func TestValidate_InvalidEntryReported(t *testing.T) {
	path := writeCatalogue(t, `{
		"weather-plugin": {
			"id": "weather-plugin",
			"entryBundleLocation": "entry.lua",
			"scopeName": "weatherPlugin",
			"declaredModules": [{"name": "./Widget"}]
		},
		"broken-plugin": {"id": 42}
	}`)

	_, stderr, err := runValidate(t, path)
	require.Error(t, err)
	assert.Contains(t, stderr, "broken-plugin")
}

func TestValidate_MissingFile(t *testing.T) {
	_, _, err := runValidate(t, filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestValidate_NotAnObject(t *testing.T) {
	path := writeCatalogue(t, `["not", "an", "object"]`)

	_, _, err := runValidate(t, path)
	require.Error(t, err)
}
