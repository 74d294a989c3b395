package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joyshmitz/zeroclaw/internal/catalog"
	"github.com/joyshmitz/zeroclaw/internal/sop"
)

const validYAML = `
name: restart-worker
description: Restart an unresponsive worker process
version: "2"
execution_mode: auto
cooldown_secs: 300
max_concurrent: 1
steps:
  - number: 1
    title: Check health
    body: curl the health endpoint
    suggested_tools: [http_get]
  - number: 2
    title: Restart
    body: restart the worker process
    requires_confirmation: true
`

func TestParseDefinitionAppliesDefaultsAndValidates(t *testing.T) {
	def, err := catalog.ParseDefinition([]byte(validYAML), "restart-worker.yaml")
	require.NoError(t, err)
	assert.Equal(t, "restart-worker", def.Name)
	assert.Equal(t, sop.PriorityNormal, def.Priority)
	assert.Equal(t, 2, def.TotalSteps())
	assert.True(t, def.Steps[1].RequiresConfirmation)
	assert.Equal(t, "restart-worker.yaml", def.Location)
}

func TestParseDefinitionRejectsMissingName(t *testing.T) {
	_, err := catalog.ParseDefinition([]byte("version: \"1\"\nsteps: []\n"), "bad.yaml")
	require.Error(t, err)
}

func TestParseDefinitionRejectsSparseStepNumbers(t *testing.T) {
	yaml := `
name: broken
steps:
  - number: 1
    title: one
    body: do one thing
  - number: 3
    title: three
    body: do another thing
`
	_, err := catalog.ParseDefinition([]byte(yaml), "broken.yaml")
	require.Error(t, err)
}

func TestParseDefinitionRejectsDuplicateStepNumbers(t *testing.T) {
	yaml := `
name: broken
steps:
  - number: 1
    title: one
    body: a
  - number: 1
    title: one-again
    body: b
`
	_, err := catalog.ParseDefinition([]byte(yaml), "broken.yaml")
	require.Error(t, err)
}

func TestLoadDirRejectsDuplicateNamesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(validYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(validYAML), 0o644))

	_, err := catalog.LoadDir(dir)
	require.Error(t, err)
}

func TestLoadDirReturnsSortedDefinitions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "z.yaml"), []byte("name: zeta\nsteps: []\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: alpha\nsteps: []\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o644))

	defs, err := catalog.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[1].Name)
}
