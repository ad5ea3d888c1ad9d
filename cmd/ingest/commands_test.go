package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipesCSV = `name,ingredients,instructions,cuisine,tags,calories,protein,carbs,fats
Vegan Curry,"chickpeas, coconut milk, curry powder",Simmer.,Indian,vegan,420,14,48,18
Chocolate Mousse,"cream, sugar, eggs",Whip.,French,,450,6,30,32
Lentil Soup,"lentils, carrot, onion",Simmer.,Indian,vegan,300,18,40,6
`

func setupEnv(t *testing.T, dim string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CI", "")
	t.Setenv("ENV", "test")
	t.Setenv("SECRETS_DIR", filepath.Join(dir, "secrets"))
	t.Setenv("EMBEDDING_PROVIDER", "hashing")
	t.Setenv("VECTOR_DIM", dim)
	t.Setenv("INDEX_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "recipes.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("BATCH_DELAY", "0s")

	path := filepath.Join(dir, "recipes.csv")
	require.NoError(t, os.WriteFile(path, []byte(recipesCSV), 0o600))
	return path
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunAndCheck(t *testing.T) {
	path := setupEnv(t, "64")

	_, err := execute("check")
	require.Error(t, err, "check must fail before the index exists")

	out, err := execute("run", "--dataset", path, "--batch-size", "1", "--delay", "0s")
	require.NoError(t, err, out)
	assert.Contains(t, out, "rows:    3")
	assert.Contains(t, out, "indexed: 2 in 2 batches")
	assert.Contains(t, out, "skipped: 1")
	assert.Contains(t, out, `row 1 "Chocolate Mousse": recipe Chocolate Mousse claims to be chocolate`)

	out, err = execute("check")
	require.NoError(t, err)
	assert.Contains(t, out, "compatible with feature-hashing-v1 (64 dimensions)")

	// Re-running is idempotent.
	out, err = execute("run", "--dataset", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "indexed: 2 in 1 batches")
}

func TestRunRequiresRecreateForNewDimension(t *testing.T) {
	path := setupEnv(t, "64")
	_, err := execute("run", "--dataset", path)
	require.NoError(t, err)

	t.Setenv("VECTOR_DIM", "32")
	_, err = execute("run", "--dataset", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recreate")

	out, err := execute("run", "--dataset", path, "--recreate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "indexed: 2")

	_, err = execute("check")
	assert.NoError(t, err)
}

func TestRunFlagErrors(t *testing.T) {
	setupEnv(t, "64")

	_, err := execute("run", "--batch-size", "0")
	assert.ErrorContains(t, err, "--batch-size must be positive")

	_, err = execute("run", "--dataset", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "failed to open dataset")

	_, err = execute("run", "extra-arg")
	assert.Error(t, err)
}
