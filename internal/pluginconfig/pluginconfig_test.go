package pluginconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/apperr"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFilename), []byte(content), 0o644))
}

func TestLoadFillsDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `api_key = "abc123"`)

	schema := []abi.ConfigField{
		{Name: "api_key", Type: abi.FieldString, Required: true},
		{Name: "retries", Type: abi.FieldInteger, Default: 3},
	}

	cfg, err := Load("p", dir, schema)
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg["api_key"])
	if cfg["retries"] != int64(3) && cfg["retries"] != 3 {
		t.Errorf("expected default retries=3, got %#v", cfg["retries"])
	}
}

func TestLoadMissingRequiredFieldIsConfigError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `unrelated = "x"`)

	schema := []abi.ConfigField{
		{Name: "api_key", Type: abi.FieldString, Required: true},
	}

	_, err := Load("p", dir, schema)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfigError), "expected ConfigError for missing required field, got %v", err)
}

func TestLoadSelectFieldRejectsValueOutsideOptions(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `mode = "bogus"`)

	schema := []abi.ConfigField{
		{Name: "mode", Type: abi.FieldSelect, Options: []string{"fast", "slow"}, Default: "fast"},
	}

	_, err := Load("p", dir, schema)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeConfigError), "expected ConfigError for out-of-enum select value, got %v", err)
}

func TestLoadMissingFileUsesDefaultsOnly(t *testing.T) {
	dir := t.TempDir()
	schema := []abi.ConfigField{
		{Name: "retries", Type: abi.FieldInteger, Default: 5},
	}

	cfg, err := Load("p", dir, schema)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg["retries"])
}

func TestWriteTemplateRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	schema := []abi.ConfigField{{Name: "api_key", Type: abi.FieldString, Required: true}}

	require.NoError(t, WriteTemplate("p", dir, schema))
	assert.Error(t, WriteTemplate("p", dir, schema), "expected second WriteTemplate call to fail, file already exists")
}
