package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheTechChild/dnd-character-builder/internal/testutil"
)

// setupConfig writes a config for a workspace in a temporary directory that
// talks to baseURL.
func setupConfig(t *testing.T, baseURL string) (cfgPath, tmpDir string) {
	t.Helper()
	tmpDir = t.TempDir()
	return testutil.SetupTestConfig(t, tmpDir, baseURL), tmpDir
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}
