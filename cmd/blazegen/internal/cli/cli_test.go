package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	validModel   = filepath.Join("..", "..", "..", "..", "compiler", "load", "testdata", "valid", "model.yaml")
	invalidModel = filepath.Join("..", "..", "..", "..", "compiler", "load", "testdata", "failure", "model.yaml")
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), ".env")}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestGenerate(t *testing.T) {
	target := t.TempDir()
	out, err := execute(t, "generate", validModel, "--target", target, "--package", "example.com/app/model")
	require.NoError(t, err)
	assert.Contains(t, out, "generated 5 file(s) for 3 view(s) in "+target)
	for _, name := range []string{"views.go", "register.go", "person/person.go"} {
		assert.FileExists(t, filepath.Join(target, name))
	}
	src, err := os.ReadFile(filepath.Join(target, "register.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), `"example.com/app/model/person"`)
}

func TestGenerateErrors(t *testing.T) {
	_, err := execute(t, "generate", invalidModel, "--target", t.TempDir())
	assert.ErrorContains(t, err, `unknown entity "Human"`)

	_, err = execute(t, "generate", validModel, "--target", t.TempDir(), "--package", "example.com/a b")
	assert.ErrorContains(t, err, "invalid import path")

	_, err = execute(t, "generate")
	assert.Error(t, err)
}

func TestRootConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "blaze.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("view:\n  updater:\n    flush_mode: eager\n"), 0o600))
	_, err := execute(t, "--config", cfg, "validate", validModel)
	assert.ErrorContains(t, err, "unknown flush mode")

	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("BLAZE_VIEW_BATCH_SIZE=0\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("BLAZE_VIEW_BATCH_SIZE") })
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--env-file", env, "validate", validModel})
	assert.ErrorContains(t, cmd.Execute(), "must be positive")
}

func TestValidateModel(t *testing.T) {
	out, err := execute(t, "validate", validModel)
	require.NoError(t, err)
	assert.Contains(t, out, "model model: 3 entities, 3 views")
}

func TestValidateDatabase(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "blaze.db")

	out, err := execute(t, "validate", validModel, "--driver", "sqlite", "--dsn", dsn)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, out, "document: table does not exist [BREAKING]")

	t.Setenv(EnvDriver, "sqlite")
	t.Setenv(EnvDSN, dsn)
	out, err = execute(t, "validate", validModel, "--create")
	require.NoError(t, err, out)
	assert.NotContains(t, out, "[BREAKING]")
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	w, err := newWatcher(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- loop(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), w, func() error {
			runs <- struct{}{}
			return nil
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.yaml"), []byte("package: model\n"), 0o600))
	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("model change was not observed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestModelDir(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, modelDir(dir))
	assert.Equal(t, dir, modelDir(filepath.Join(dir, "model.yaml")))
	assert.True(t, isModelFile("a/b.yml"))
	assert.False(t, isModelFile("a/b.go"))
}
