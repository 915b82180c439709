package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/INLOpen/flatindex/config"
	"github.com/INLOpen/flatindex/core"
	"github.com/INLOpen/flatindex/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t         *testing.T
	dir       string
	data      string
	index     string
	configArg []string
}

func newCLI(t *testing.T, lines ...string) *cli {
	dir := t.TempDir()
	return &cli{
		t:         t,
		dir:       dir,
		data:      testutil.WriteLines(t, dir, "data.txt", lines...),
		index:     filepath.Join(dir, "data.idx"),
		configArg: []string{"-config", filepath.Join(dir, "none.yaml"), "-log-output", "none"},
	}
}

func (c *cli) run(stdin string, args ...string) (string, string, int) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append(append([]string(nil), c.configArg...), args...), strings.NewReader(stdin), &stdout, &stderr)
	code := exitCode(err, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestCLI_ExampleScenario(t *testing.T) {
	c := newCLI(t, "AAA:1", "BBB:2", "AAC:3")

	_, stderr, code := c.run("", "-c", c.data, c.index, "3")
	require.Equal(t, exitOK, code, stderr)

	out, _, code := c.run("", "-l", c.data, c.index, "3")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "AAA:1\nAAC:3\nBBB:2\n", out)

	out, _, code = c.run("", "-s", c.data, c.index, "3", "AAC")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "AAC:3\n", out)

	out, _, code = c.run("", "-s", c.data, c.index, "3", "ZZZ")
	assert.Equal(t, exitNotFound, code)
	assert.Equal(t, "Record not found\n", out)
}

func TestCLI_SearchAllAndModes(t *testing.T) {
	c := newCLI(t, "DUP one", "AAA", "DUP two")
	_, _, code := c.run("", "-format", "raw", "-strategy", "merge", "-chunk-entries", "1", "-compression", "lz4", "-c", c.data, c.index, "3")
	require.Equal(t, exitOK, code)

	out, _, code := c.run("", "-format", "raw", "-all", "-s", c.data, c.index, "3", "DUP")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "DUP one\nDUP two\n", out)

	out, _, code = c.run("", "-format", "raw", "-search-mode", "leftmost", "-s", c.data, c.index, "3", "DUP")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "DUP one\n", out)
}

func TestCLI_Batch(t *testing.T) {
	c := newCLI(t, "a b:1", "AAA:2", "CCC:3")
	_, _, code := c.run("", "-c", c.data, c.index, "3")
	require.Equal(t, exitOK, code)

	out, _, code := c.run("AAA 'a b'\nCCC\n", "-b", c.data, c.index, "3")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "AAA:2\na b:1\nCCC:3\n", out)

	out, _, code = c.run("AAA ZZZ\n", "-b", c.data, c.index, "3")
	assert.Equal(t, exitNotFound, code)
	assert.Equal(t, "AAA:2\nRecord not found\n", out)

	_, stderr, code := c.run("'unterminated\n", "-b", c.data, c.index, "3")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "line 1")
}

func TestCLI_VerifyAndStats(t *testing.T) {
	c := newCLI(t, "AAA:1", "BBB:22", "AAA:333")
	_, _, code := c.run("", "-c", c.data, c.index, "3")
	require.Equal(t, exitOK, code)

	out, _, code := c.run("", "-check-count", "-v", c.data, c.index, "3")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "OK: 3 entries\n", out)

	out, _, code = c.run("", "-t", c.data, c.index, "3")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "entries:            3\n")
	assert.Contains(t, out, "distinct keys:      2\n")

	require.NoError(t, os.WriteFile(c.data, []byte("XXX:1\nBBB:22\nAAA:333\n"), 0644))
	out, stderr, code := c.run("", "-v", c.data, c.index, "3")
	assert.Equal(t, exitError, code)
	assert.Contains(t, out, "does not start with key")
	assert.Contains(t, stderr, core.ErrVerificationFailed.Error())
}

func TestCLI_UsageErrors(t *testing.T) {
	c := newCLI(t, "AAA:1")
	testCases := []struct {
		name string
		args []string
	}{
		{"no operation", []string{c.data, c.index, "3"}},
		{"two operations", []string{"-c", "-l", c.data, c.index, "3"}},
		{"missing key", []string{"-s", c.data, c.index, "3"}},
		{"extra argument", []string{"-c", c.data, c.index, "3", "x"}},
		{"bad key length", []string{"-c", c.data, c.index, "three"}},
		{"zero key length", []string{"-c", c.data, c.index, "0"}},
		{"bad format", []string{"-format", "v7", "-c", c.data, c.index, "3"}},
		{"bad log level", []string{"-log-level", "loud", "-c", c.data, c.index, "3"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, code := c.run("", tc.args...)
			assert.Equal(t, exitError, code)
			assert.Contains(t, stderr, "Usage:")
		})
	}
}

func TestCLI_OperationalErrors(t *testing.T) {
	c := newCLI(t, "AAAA:1")
	_, _, code := c.run("", "-c", c.data, c.index, "4")
	require.Equal(t, exitOK, code)

	_, stderr, code := c.run("", "-s", c.data, c.index, "3", "AAA")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, core.ErrSchemaMismatch.Error())

	_, stderr, code = c.run("", "-c", filepath.Join(c.dir, "missing.txt"), c.index, "4")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "missing.txt")
}

func TestCLI_ConfigFile(t *testing.T) {
	c := newCLI(t, "AAAA:1", "BBBB:2")
	cfgPath := filepath.Join(c.dir, "flatindex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("index:\n  key_length: 4\n  format: raw\nlogging:\n  output: none\ndebug:\n  file_tracking: true\n  metrics_enabled: true\n"), 0644))
	c.configArg = []string{"-config", cfgPath}

	_, _, code := c.run("", "-c", c.data, c.index, "-")
	require.Equal(t, exitOK, code)
	info, err := os.Stat(c.index)
	require.NoError(t, err)
	assert.Equal(t, int64(2*core.RecordSize(4)), info.Size())

	out, _, code := c.run("", "-s", c.data, c.index, "-", "BBBB")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "BBBB:2\n", out)
}

func TestCLI_SlowSearchHook(t *testing.T) {
	c := newCLI(t, "AAAA:1", "BBBB:2")
	logPath := filepath.Join(c.dir, "flatindex.log")
	cfgPath := filepath.Join(c.dir, "flatindex.yaml")
	yamlContent := "logging:\n  output: file\n  file: " + logPath + "\n  format: text\nhooks:\n  slow_search_threshold: 1ns\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0644))
	c.configArg = []string{"-config", cfgPath}

	_, _, code := c.run("", "-c", c.data, c.index, "4")
	require.Equal(t, exitOK, code)
	_, _, code = c.run("", "-s", c.data, c.index, "4", "AAAA")
	require.Equal(t, exitOK, code)

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "Slow search")
}

func TestCreateLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, closer, err := createLogger(config.LoggingConfig{Level: "info", Output: "stderr", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Nil(t, closer)
	logger.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logger, _, err = createLogger(config.LoggingConfig{Level: "warn", Output: "stderr", Format: "text"}, &buf)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")

	logPath := filepath.Join(t.TempDir(), "flatindex.log")
	logger, closer, err = createLogger(config.LoggingConfig{Level: "debug", Output: "file", File: logPath, Format: "auto"}, &buf)
	require.NoError(t, err)
	require.NotNil(t, closer)
	logger.Debug("to file")
	require.NoError(t, closer.Close())
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"to file"`)

	for _, bad := range []config.LoggingConfig{
		{Level: "loud"},
		{Level: "info", Output: "syslog"},
		{Level: "info", Output: "file"},
		{Level: "info", Output: "none", Format: "xml"},
	} {
		_, _, err := createLogger(bad, &buf)
		assert.Error(t, err, "%+v", bad)
	}
}

func TestCreateLogger_AutoFormatOnTerminal(t *testing.T) {
	orig := isTerminal
	t.Cleanup(func() { isTerminal = orig })
	isTerminal = func(*os.File) bool { return true }

	f, err := os.Create(filepath.Join(t.TempDir(), "tty"))
	require.NoError(t, err)
	defer f.Close()

	logger, _, err := createLogger(config.LoggingConfig{Level: "info", Output: "stderr", Format: "auto"}, f)
	require.NoError(t, err)
	logger.Info("pretty")
	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "msg=pretty")
}

func TestInitTracerProvider_Disabled(t *testing.T) {
	logger, _, err := createLogger(config.LoggingConfig{Output: "none"}, nil)
	require.NoError(t, err)
	tp, cleanup, err := initTracerProvider(config.TracingConfig{Enabled: false}, logger)
	require.NoError(t, err)
	require.NotNil(t, tp)
	cleanup()

	_, _, err = initTracerProvider(config.TracingConfig{Enabled: true, Protocol: "carrier-pigeon"}, logger)
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, exitOK, exitCode(nil, &buf))
	assert.Equal(t, exitNotFound, exitCode(core.ErrNotFound, &buf))
	assert.Equal(t, exitError, exitCode(errors.New("boom"), &buf))
	assert.Contains(t, buf.String(), "flatindex: boom")
}
