package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_MissingManifest(t *testing.T) {
	t.Parallel()

	err := run(io.Discard, []string{"-manifest", filepath.Join(t.TempDir(), "absent.hcl")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse manifest file")
}

func TestRun_ManifestMismatch(t *testing.T) {
	t.Parallel()

	// A syntactically valid manifest that does not match the built tree must
	// stop startup before any connection is attempted.
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "bot.hcl")
	err := os.WriteFile(filePath, []byte(`
piece "bot" {
  command "not_a_real_command" {}
}
`), 0600)
	require.NoError(t, err, "failed to set up test file")

	runErr := run(io.Discard, []string{"-manifest", filePath})
	require.Error(t, runErr)
	require.Contains(t, runErr.Error(), "manifest validation failed")
}

func TestRun_UnknownFlag(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"-definitely-not-a-flag"})
	require.Error(t, err)
	require.Contains(t, out.String(), "Usage")
}
