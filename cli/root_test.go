package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GusMove/pkg/engine"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd, _ := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func makeTree(t *testing.T) (src, dst string) {
	t.Helper()
	root := t.TempDir()
	src = filepath.Join(root, "src")
	dst = filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "album"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("notes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "album", "p1.jpg"), bytes.Repeat([]byte{0xAB}, 4096), 0o644))
	return src, dst
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(engine.SyntaxError("bad")))
	assert.Equal(t, 1, ExitCode(engine.ErrIncomplete))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
}

func TestParseConcurrency(t *testing.T) {
	n, err := parseConcurrency("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"abc", "0", "-1", "1.5", ""} {
		_, err := parseConcurrency(bad)
		assert.ErrorIs(t, err, engine.ErrSyntax, bad)
	}
}

func TestRoot_MovesTree(t *testing.T) {
	src, dst := makeTree(t)
	journal := filepath.Join(filepath.Dir(src), "journal.md")

	stdout, stderr, err := execute(t, src, dst, "2", "--progress", "none", "--journal", journal)
	require.NoError(t, err)
	assert.Contains(t, stdout, "move complete")
	assert.Contains(t, stderr, "Moved: 2 | Failed: 0 | Skipped: 0")

	got, err := os.ReadFile(filepath.Join(dst, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "notes", string(got))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(journal)
	require.NoError(t, err)
	assert.Contains(t, string(data), "- [x] "+filepath.Join(src, "notes.txt")+" -> "+filepath.Join(dst, "notes.txt"))
}

func TestRoot_JSONOutput(t *testing.T) {
	src, dst := makeTree(t)

	stdout, _, err := execute(t, src, dst, "--json", "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	var start, complete JSONEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &start))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &complete))
	assert.Equal(t, "start", start.Type)
	assert.Equal(t, "complete", complete.Type)

	data := complete.Data.(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.EqualValues(t, 2, data["moved"])
	assert.Equal(t, true, data["sourceRemoved"])
}

func TestRoot_SyntaxErrors(t *testing.T) {
	src, dst := makeTree(t)

	cases := map[string][]string{
		"missing destination": {src},
		"too many args":       {src, dst, "2", "extra"},
		"bad concurrency":     {src, dst, "many"},
		"zero concurrency":    {src, dst, "0"},
		"nested destination":  {src, filepath.Join(src, "inner")},
		"unknown flag":        {src, dst, "--frobnicate"},
		"bad progress mode":   {src, dst, "--progress", "fancy"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, 2, ExitCode(err))
		})
	}

	// Nothing moved.
	_, err := os.Stat(filepath.Join(src, "notes.txt"))
	assert.NoError(t, err)
}

func TestRoot_MissingSource(t *testing.T) {
	root := t.TempDir()
	_, _, err := execute(t, filepath.Join(root, "nope"), filepath.Join(root, "dst"), "--progress", "none")
	require.ErrorIs(t, err, engine.ErrSourceMissing)
	assert.Equal(t, 1, ExitCode(err))
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "gusmove dev\n", stdout)
}

func TestReportError(t *testing.T) {
	cmd, opts := newRootCmd()
	var errOut bytes.Buffer
	cmd.SetErr(&errOut)

	reportError(cmd, opts, engine.SyntaxError("invalid concurrency limit %q", "x"))
	assert.Contains(t, errOut.String(), `Error: incorrect syntax: invalid concurrency limit "x"`)
	assert.Contains(t, errOut.String(), "Usage:")

	errOut.Reset()
	opts.json = true
	reportError(cmd, opts, engine.ErrIncomplete)
	var ev JSONEvent
	require.NoError(t, json.Unmarshal(errOut.Bytes(), &ev))
	assert.Equal(t, "error", ev.Type)
}
