package standardise

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// specDoc mirrors the on-disk layout: a top-level "standardiser" key.
type specDoc struct {
	Standardiser map[string]interface{} `yaml:"standardiser"`
}

func writeSpecFile(t *testing.T, dir, name string, doc specDoc) {
	t.Helper()
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestLoadSpec_BaseOnly(t *testing.T) {
	dir := t.TempDir()
	writeSpecFile(t, dir, "base.yaml", specDoc{Standardiser: map[string]interface{}{
		"to_snake_case": true,
		"rename":        map[string]string{"application_id": "journey_id"},
		"require":       []string{"journey_id"},
	}})

	spec, err := LoadSpec(dir, "")
	require.NoError(t, err)
	require.True(t, spec.ToSnakeCase)
	require.Equal(t, "journey_id", spec.Rename["application_id"])
	require.Equal(t, []string{"journey_id"}, spec.Require)
}

func TestLoadSpec_CustomerOverride(t *testing.T) {
	dir := t.TempDir()
	writeSpecFile(t, dir, "base.yaml", specDoc{Standardiser: map[string]interface{}{
		"to_snake_case": true,
		"rename":        map[string]string{"application_id": "journey_id"},
		"require":       []string{"journey_id"},
	}})
	writeSpecFile(t, dir, "customer_a.yaml", specDoc{Standardiser: map[string]interface{}{
		"rename":  map[string]string{"acct_ref": "journey_id"},
		"require": []string{"journey_id", "event_ts"},
	}})

	spec, err := LoadSpec(dir, "customer_a")
	require.NoError(t, err)

	// Maps deep-merge: base entries survive, customer entries add.
	require.True(t, spec.ToSnakeCase)
	require.Equal(t, "journey_id", spec.Rename["application_id"])
	require.Equal(t, "journey_id", spec.Rename["acct_ref"])
	// Lists replace wholesale.
	require.Equal(t, []string{"journey_id", "event_ts"}, spec.Require)
}

func TestLoadSpec_UnknownCustomerFallsBackToBase(t *testing.T) {
	dir := t.TempDir()
	writeSpecFile(t, dir, "base.yaml", specDoc{Standardiser: map[string]interface{}{
		"to_snake_case": true,
	}})

	spec, err := LoadSpec(dir, "customer_z")
	require.NoError(t, err)
	require.True(t, spec.ToSnakeCase)
}

func TestLoadSpec_MissingBase(t *testing.T) {
	_, err := LoadSpec(t.TempDir(), "")
	require.Error(t, err)
}
