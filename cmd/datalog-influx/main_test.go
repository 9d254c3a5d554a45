package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/datalog-influx/internal/config"
	"github.com/coffersTech/datalog-influx/internal/datalog"
	"github.com/coffersTech/datalog-influx/internal/model"
	"github.com/coffersTech/datalog-influx/internal/pkg/security"
	"github.com/coffersTech/datalog-influx/internal/storage"
)

// writeLog writes a log with a time base of 4000 ms and two values of x.
func writeLog(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "match.wpilog")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := datalog.NewWriter(f, "")
	require.NoError(t, err)
	require.NoError(t, w.Start(1, "systemTime", "int64", "", 1_000_000))
	require.NoError(t, w.AppendInteger(1, 5_000_000, 1_000_000))
	require.NoError(t, w.Start(2, "x", "double", "", 1_000_000))
	require.NoError(t, w.AppendDouble(2, 3.14, 1_000_000))
	require.NoError(t, w.AppendDouble(2, 2.71, 2_000_000))
	return path
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRunFileSink(t *testing.T) {
	dir := t.TempDir()
	logPath := writeLog(t, dir)
	dataDir := filepath.Join(dir, "data")
	cfgPath := writeConfig(t, dir, "bucket: frc\nsink: file\nfile:\n  dir: "+dataDir+"\n  compression: s2\n")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-c", cfgPath, logPath}, nil, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	assert.Contains(t, stdout.String(), "Start(1, name='systemTime', type='int64', metadata='') [1000]\n")
	assert.Contains(t, stdout.String(), "Start(2, name='x', type='double', metadata='') [1000]\n")
	assert.Contains(t, stderr.String(), "ingestion finished")

	files, err := filepath.Glob(filepath.Join(dataDir, "frc", "*"+storage.FileExt))
	require.NoError(t, err)
	require.Len(t, files, 1)

	points, err := storage.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, []model.Point{
		{Measurement: "robot", Time: 5000, Fields: []model.Field{{Name: "x", Value: model.Float(3.14)}}},
		{Measurement: "robot", Time: 6000, Fields: []model.Field{{Name: "x", Value: model.Float(2.71)}}},
	}, points)
}

func TestRunInfluxSink(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "Token abc", r.Header.Get("Authorization"))
		assert.Equal(t, "frc", r.URL.Query().Get("bucket"))
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	dir := t.TempDir()
	logPath := writeLog(t, dir)
	cfgPath := writeConfig(t, dir, "bucket: frc\nmeasurement: bot\ninflux:\n  url: "+srv.URL+"\n  token: abc\n")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", cfgPath, "-q", logPath}, nil, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	assert.Empty(t, stdout.String())
	assert.Equal(t, []string{"bot x=3.14 5000\nbot x=2.71 6000\n"}, bodies)
}

func TestRunSinkFailure(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"code":"unauthorized","message":"unauthorized access"}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	logPath := writeLog(t, dir)
	cfgPath := writeConfig(t, dir, "bucket: frc\ninflux:\n  url: "+srv.URL+"\n")

	err := run(context.Background(), []string{"-q", "-c", cfgPath, logPath}, nil, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized access")
}

func TestRunSinkOverride(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	dir := t.TempDir()
	logPath := writeLog(t, dir)
	dataDir := filepath.Join(dir, "out")
	cfgPath := writeConfig(t, dir, "bucket: frc\ninflux:\n  url: http://127.0.0.1:1\nfile:\n  dir: "+dataDir+"\n")

	err := run(context.Background(), []string{"-q", "-c", cfgPath, "--sink", "file", logPath}, nil, io.Discard, io.Discard)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dataDir, "frc", "*"+storage.FileExt))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	err = run(context.Background(), []string{"-q", "-c", cfgPath, "--sink", "kafka", logPath}, nil, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "unknown sink")
}

func TestRunUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"a", "b"}, {"--bogus", "a"}} {
		var stderr bytes.Buffer
		err := run(context.Background(), args, nil, io.Discard, &stderr)
		assert.ErrorIs(t, err, errUsage, "%v", args)
		assert.Contains(t, stderr.String(), "usage: datalog-influx")
	}
}

func TestRunNotALog(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "bucket: frc\nsink: file\nfile:\n  dir: "+filepath.Join(dir, "data")+"\n")
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text, not a log"), 0644))

	err := run(context.Background(), []string{"-c", cfgPath, path}, nil, io.Discard, io.Discard)
	assert.ErrorIs(t, err, datalog.ErrNotDataLog)
}

func TestRunVersion(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, nil, &stdout, io.Discard))
	assert.Equal(t, "datalog-influx dev\n", stdout.String())
}

func TestRunSealToken(t *testing.T) {
	t.Setenv(config.EnvKey, "passphrase")

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--seal-token"}, strings.NewReader("my-token\n"), &stdout, io.Discard)
	require.NoError(t, err)

	sealed := strings.TrimSpace(stdout.String())
	token, err := security.OpenToken("passphrase", sealed)
	require.NoError(t, err)
	assert.Equal(t, "my-token", token)

	err = run(context.Background(), []string{"--seal-token"}, strings.NewReader(""), io.Discard, io.Discard)
	assert.Error(t, err)
}
