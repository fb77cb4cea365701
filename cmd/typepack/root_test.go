package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/typepack/layout"
)

const vectorLayout = `kind: vector
count: 3
blocklength: 2
stride: 40
child:
  kind: builtin
  type: int32
`

const deepLayout = `kind: vector
count: 2
blocklength: 1
stride: 64
child:
  kind: indexed
  blocklengths: [1, 2]
  displacements: [0, 24]
  child:
    kind: contiguous
    count: 2
    child:
      kind: builtin
      type: double
`

func writeLayout(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandsAndFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"detect", "plan", "offsets", "run"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{"config", "max-nesting-level", "backend", "log-level", "host-workers", "gpu-sync-timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestWritePlan(t *testing.T) {
	n, err := loadLayout(writeLayout(t, vectorLayout))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writePlan(&out, n, "host", 3))
	got := out.String()
	assert.Contains(t, got, "elements:     6 x int32")
	assert.Contains(t, got, "true bounds:  lb=0 ub=88")
	assert.Contains(t, got, "host_pack_vector_w4_fast [vector:int32]")
	assert.Contains(t, got, "host_unpack_vector_w4_fast [vector:int32]")
}

func TestWritePlanBeyondLimit(t *testing.T) {
	n, err := loadLayout(writeLayout(t, deepLayout))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writePlan(&out, n, "host", 2))
	got := out.String()
	assert.Contains(t, got, "depth:        3 (limit 2)")
	assert.Equal(t, 2, strings.Count(got, "unspecialized"))
}

func TestOffsetsCommand(t *testing.T) {
	path := writeLayout(t, vectorLayout)
	out, err := execute(t, "offsets", path)
	require.NoError(t, err)
	assert.Equal(t, "0\t0\n1\t4\n2\t40\n3\t44\n4\t80\n5\t84\n", out)

	out, err = execute(t, "offsets", "--count", "2", "--decompose", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "7\t92\trep=1 vector[0,1] leaf=0", lines[7])
}

func TestOffsetsRejectsCount(t *testing.T) {
	_, err := execute(t, "offsets", "--count", "0", writeLayout(t, vectorLayout))
	require.Error(t, err)
}

func TestRunCommandHost(t *testing.T) {
	for _, body := range []string{vectorLayout, deepLayout} {
		out, err := execute(t, "run", "--count", "3", "--backend", "host", writeLayout(t, body))
		require.NoError(t, err)
		assert.Contains(t, out, "round trip: ok")
	}
}

func TestRunCommandUnspecialized(t *testing.T) {
	_, err := execute(t, "run", "--backend", "cpu", "--max-nesting-level", "2", writeLayout(t, deepLayout))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unspecialized")
}

func TestRequireConfig(t *testing.T) {
	loaded = false
	_, err := requireConfig()
	require.Error(t, err)

	_, err = execute(t, "plan", writeLayout(t, vectorLayout))
	require.NoError(t, err)
	cfg, err := requireConfig()
	require.NoError(t, err)
	assert.Equal(t, "host", cfg.Backend)
	assert.Equal(t, 3, cfg.MaxNestingLevel)
}

func TestLoadLayoutErrors(t *testing.T) {
	_, err := loadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = loadLayout(writeLayout(t, "kind: vector\ncount: 1\n"))
	require.Error(t, err)

	n, err := loadLayout(writeLayout(t, "kind: builtin\ntype: double\n"))
	require.NoError(t, err)
	assert.Equal(t, layout.Float64, n.Element())
}
