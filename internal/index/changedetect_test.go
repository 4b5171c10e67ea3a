package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/internal/scanner"
	"github.com/kestrelsearch/kestrel/internal/store"
)

func writeTempFile(t *testing.T, dir, name, content string) *scanner.FileInfo {
	t.Helper()
	abs := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	info, err := os.Stat(abs)
	require.NoError(t, err)
	return &scanner.FileInfo{Path: name, AbsPath: abs, Size: info.Size(), ModTime: info.ModTime()}
}

func TestChangeDetectorAddedModifiedDeletedUnchanged(t *testing.T) {
	dir := t.TempDir()
	unchanged := writeTempFile(t, dir, "unchanged.go", "package a\n")
	modified := writeTempFile(t, dir, "modified.go", "package b\n")
	added := writeTempFile(t, dir, "added.go", "package c\n")

	unchangedHash, err := hashFile(unchanged.AbsPath)
	require.NoError(t, err)
	modifiedOldHash, err := hashFile(modified.AbsPath)
	require.NoError(t, err)
	// modified.go changes content after its hash was recorded.
	modified = writeTempFile(t, dir, "modified.go", "package b\n\nfunc B() {}\n")

	stored := map[string]store.FileHashEntry{
		"unchanged.go": {RelativePath: "unchanged.go", ContentHash: unchangedHash, SizeBytes: unchanged.Size, LastModified: unchanged.ModTime},
		"modified.go":  {RelativePath: "modified.go", ContentHash: modifiedOldHash, SizeBytes: modified.Size, LastModified: modified.ModTime.Add(-time.Hour)},
		"deleted.go":   {RelativePath: "deleted.go", ContentHash: "deadbeef", SizeBytes: 10, LastModified: time.Now()},
	}

	cd := NewChangeDetector()
	changes, err := cd.Detect([]*scanner.FileInfo{unchanged, modified, added}, stored)
	require.NoError(t, err)

	byPath := map[string]Change{}
	for _, c := range changes {
		byPath[c.RelativePath] = c
	}

	assert.Equal(t, ChangeUnchanged, byPath["unchanged.go"].Kind)
	assert.Equal(t, ChangeModified, byPath["modified.go"].Kind)
	assert.Equal(t, ChangeAdded, byPath["added.go"].Kind)
	assert.Equal(t, ChangeDeleted, byPath["deleted.go"].Kind)
}

func TestChangeDetectorIdempotent(t *testing.T) {
	dir := t.TempDir()
	f := writeTempFile(t, dir, "stable.go", "package stable\n")
	hash, err := hashFile(f.AbsPath)
	require.NoError(t, err)

	stored := map[string]store.FileHashEntry{
		"stable.go": {RelativePath: "stable.go", ContentHash: hash, SizeBytes: f.Size, LastModified: f.ModTime},
	}

	cd := NewChangeDetector()
	first, err := cd.Detect([]*scanner.FileInfo{f}, stored)
	require.NoError(t, err)
	second, err := cd.Detect([]*scanner.FileInfo{f}, stored)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, ChangeUnchanged, first[0].Kind)
}
