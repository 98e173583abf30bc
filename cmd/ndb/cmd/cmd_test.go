package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (cfgFile, dir string) {
	t.Helper()
	dir = t.TempDir()
	content := fmt.Sprintf(`
store:
  path: %s
  chunk_size: 65536
log:
  level: error
archive:
  backend: local
  local:
    dir: %s
`, filepath.Join(dir, "index.ndb"), filepath.Join(dir, "archive"))
	cfgFile = filepath.Join(dir, "ndb.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))
	return cfgFile, dir
}

func run(t *testing.T, cfgFile string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfgFile}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, cfgFile string, args ...string) string {
	t.Helper()
	out, err := run(t, cfgFile, args...)
	require.NoError(t, err, "ndb %s", strings.Join(args, " "))
	return out
}

var idPattern = regexp.MustCompile(`ID:\s+([0-9a-f-]{36})`)

func TestPutDumpStats(t *testing.T) {
	cfgFile, _ := writeConfig(t)

	addr := strings.TrimSpace(mustRun(t, cfgFile, "put", `{"tag":"string","string":"hello"}`))
	require.NotEmpty(t, addr)

	out := mustRun(t, cfgFile, "dump", "--text", addr)
	assert.Contains(t, out, `"hello"`)

	out = mustRun(t, cfgFile, "dump", addr)
	assert.Contains(t, out, `"tag":"string"`)
	assert.Contains(t, out, `"string":"hello"`)

	out = mustRun(t, cfgFile, "dump", "--pretty", addr)
	assert.Contains(t, out, "\n  \"tag\": \"string\"")

	out = mustRun(t, cfgFile, "stats", "--counts")
	assert.Regexp(t, idPattern, out)
	assert.Contains(t, out, "constants:    1\n")
	assert.Contains(t, out, "string")

	out = mustRun(t, cfgFile, "verify")
	assert.Contains(t, out, ": ok")
}

func TestPutFromStdin(t *testing.T) {
	cfgFile, _ := writeConfig(t)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(`{"tag":"int","int":42}`))
	root.SetArgs([]string{"--config", cfgFile, "put"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	text := mustRun(t, cfgFile, "dump", "--text", strings.TrimSpace(out.String()))
	assert.Contains(t, text, "\t42\n")
}

func TestSnapshotRestore(t *testing.T) {
	cfgFile, dir := writeConfig(t)
	snap := filepath.Join(dir, "index.ndbs")

	mustRun(t, cfgFile, "put", `{"tag":"long","int":7}`)

	out := mustRun(t, cfgFile, "snapshot", snap)
	assert.Contains(t, out, "Wrote")

	out = mustRun(t, cfgFile, "verify", "--snapshot", snap)
	assert.Contains(t, out, "ok (zstd")

	mustRun(t, cfgFile, "put", `{"tag":"long","int":8}`)
	assert.Contains(t, mustRun(t, cfgFile, "stats", "--counts"), "constants:    2\n")

	out = mustRun(t, cfgFile, "restore", snap)
	assert.Contains(t, out, "Restored")
	assert.Contains(t, mustRun(t, cfgFile, "stats", "--counts"), "constants:    1\n")
}

func TestArchiveLocal(t *testing.T) {
	cfgFile, _ := writeConfig(t)

	mustRun(t, cfgFile, "put", `{"tag":"boolean","bool":true}`)
	id := idPattern.FindStringSubmatch(mustRun(t, cfgFile, "stats"))[1]

	out := mustRun(t, cfgFile, "archive", "push")
	assert.Contains(t, out, "Pushed "+id+"/")

	mustRun(t, cfgFile, "put", `{"tag":"boolean","bool":false}`)
	out = mustRun(t, cfgFile, "archive", "push")
	assert.Contains(t, out, "version 2")

	out = mustRun(t, cfgFile, "archive", "list")
	assert.Contains(t, out, "VERSION")
	assert.Equal(t, 3, strings.Count(out, "\n"), out)

	out = mustRun(t, cfgFile, "archive", "pull", id, "--version", "1")
	assert.Contains(t, out, "(version 1)")
	assert.Contains(t, mustRun(t, cfgFile, "stats", "--counts"), "constants:    1\n")

	_, err := run(t, cfgFile, "archive", "pull", id, "--version", "9")
	assert.Error(t, err)
}

func TestErrors(t *testing.T) {
	cfgFile, _ := writeConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad address", []string{"dump", "zzz"}},
		{"bad log level", []string{"--log-level", "loud", "stats"}},
		{"bad codec", []string{"dump", "--codec", "xml", "0x10"}},
		{"bad document", []string{"put", `{"tag":"nope"}`}},
		{"bad store id", []string{"archive", "list", "not-a-uuid"}},
		{"missing snapshot", []string{"restore", "/nonexistent/snapshot.ndbs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, cfgFile, tt.args...)
			assert.Error(t, err)
		})
	}
}
