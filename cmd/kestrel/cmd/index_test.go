package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexThenSearchEndToEnd(t *testing.T) {
	repoDir := t.TempDir()
	storeRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "greeter.go"),
		[]byte("package main\n\nfunc greet(name string) string {\n\treturn \"hello \" + name\n}\n"), 0o644))

	indexCmd := newIndexCmd()
	indexBuf := &bytes.Buffer{}
	indexCmd.SetOut(indexBuf)
	indexCmd.SetArgs([]string{repoDir, "--alias", "demo", "--backend", "static", "--store", storeRoot, "--set", "all-repos"})
	require.NoError(t, indexCmd.Execute())
	assert.Contains(t, indexBuf.String(), "indexed")

	searchCmd := newSearchCmd()
	searchBuf := &bytes.Buffer{}
	searchCmd.SetOut(searchBuf)
	searchCmd.SetArgs([]string{"greet name hello", "--scope", "set:all-repos", "--backend", "static", "--store", storeRoot})
	require.NoError(t, searchCmd.Execute())
	assert.Contains(t, searchBuf.String(), "greeter.go")
}

func TestStatusReportsIndexedRepo(t *testing.T) {
	repoDir := t.TempDir()
	storeRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0o644))

	indexCmd := newIndexCmd()
	indexCmd.SetOut(&bytes.Buffer{})
	indexCmd.SetArgs([]string{repoDir, "--alias", "demo", "--backend", "static", "--store", storeRoot})
	require.NoError(t, indexCmd.Execute())

	statusCmd := newStatusCmd()
	statusBuf := &bytes.Buffer{}
	statusCmd.SetOut(statusBuf)
	statusCmd.SetArgs([]string{repoDir, "--alias", "demo", "--store", storeRoot})
	require.NoError(t, statusCmd.Execute())
	assert.Contains(t, statusBuf.String(), "demo")
}
