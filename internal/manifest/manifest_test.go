package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic-build/treeline/internal/digest"
	"github.com/mosaic-build/treeline/internal/stats"
)

func newTestManifest(t *testing.T, opts Options) (*Manifest, *ActionResult) {
	t.Helper()
	if opts.ExecRoot == "" {
		opts.ExecRoot = t.TempDir()
	}
	result := &ActionResult{}
	return New(result, opts), result
}

func writeFile(t *testing.T, dir, name string, content []byte, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, mode))
	return path
}

func TestAddFiles(t *testing.T) {
	root := t.TempDir()
	m, result := newTestManifest(t, Options{ExecRoot: root})

	path := writeFile(t, root, "out/a.txt", []byte("hello"), 0644)
	require.NoError(t, m.AddFiles([]string{path}, NeverInsert))

	require.Len(t, result.OutputFiles, 1)
	of := result.OutputFiles[0]
	assert.Equal(t, filepath.Join("out", "a.txt"), of.Path)
	assert.Equal(t, digest.FromBytes([]byte("hello")), of.Digest)
	assert.False(t, of.IsExecutable)

	assert.Equal(t, map[digest.Digest]string{of.Digest: path}, m.FileBlobs())
	assert.Empty(t, m.BlobUnits())
}

func TestAddFilesExecutableBit(t *testing.T) {
	root := t.TempDir()
	m, result := newTestManifest(t, Options{ExecRoot: root})

	exe := writeFile(t, root, "tool", []byte("#!/bin/sh\n"), 0755)
	plain := writeFile(t, root, "data", []byte("x"), 0644)
	require.NoError(t, m.AddFiles([]string{exe, plain}, NeverInsert))

	require.Len(t, result.OutputFiles, 2)
	assert.True(t, result.OutputFiles[0].IsExecutable)
	assert.False(t, result.OutputFiles[1].IsExecutable)
}

func TestAddFilesMissingSkipped(t *testing.T) {
	root := t.TempDir()
	collector := stats.NewCollector()
	m, result := newTestManifest(t, Options{ExecRoot: root, Stats: collector})

	produced := writeFile(t, root, "made.txt", []byte("made"), 0644)
	missing := filepath.Join(root, "never-made.txt")
	require.NoError(t, m.AddFiles([]string{missing, produced}, NeverInsert))

	require.Len(t, result.OutputFiles, 1)
	assert.Equal(t, "made.txt", result.OutputFiles[0].Path)
	assert.Len(t, m.FileBlobs(), 1)
	assert.Equal(t, int64(1), collector.Snapshot().OutputsMissing)
}

func TestAddFilesDirectoryIsMismatched(t *testing.T) {
	root := t.TempDir()
	m, result := newTestManifest(t, Options{ExecRoot: root})

	require.NoError(t, os.Mkdir(filepath.Join(root, "outdir"), 0755))
	err := m.AddFiles([]string{filepath.Join(root, "outdir")}, NeverInsert)

	var mismatched *MismatchedOutputError
	require.ErrorAs(t, err, &mismatched)
	assert.Equal(t, "outdir", mismatched.Path)
	assert.Equal(t, "directory", mismatched.Actual)
	assert.Equal(t, "file", mismatched.Expected)
	assert.Empty(t, result.OutputFiles)
}

func TestAddFilesAbortsOnFirstError(t *testing.T) {
	root := t.TempDir()
	m, result := newTestManifest(t, Options{ExecRoot: root})

	require.NoError(t, os.Mkdir(filepath.Join(root, "bad"), 0755))
	after := writeFile(t, root, "after.txt", []byte("x"), 0644)

	err := m.AddFiles([]string{filepath.Join(root, "bad"), after}, NeverInsert)
	require.Error(t, err)
	// The path after the failure was not processed.
	assert.Empty(t, result.OutputFiles)
	assert.Empty(t, m.FileBlobs())
}

func TestAddFilesSymlinkPolicy(t *testing.T) {
	root := t.TempDir()
	target := writeFile(t, root, "target.txt", []byte("linked"), 0644)
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(target, link))

	// Disallowed by default.
	m, _ := newTestManifest(t, Options{ExecRoot: root})
	err := m.AddFiles([]string{link}, NeverInsert)
	var illegal *IllegalOutputError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "link", illegal.Path)
	assert.Equal(t, "symbolic link", illegal.Kind)
	assert.Contains(t, illegal.Error(), "only regular files and directories")

	// Accepted when enabled; content digested through the link.
	m2, result := newTestManifest(t, Options{ExecRoot: root, AllowSymlinks: true})
	require.NoError(t, m2.AddFiles([]string{link}, NeverInsert))
	require.Len(t, result.OutputFiles, 1)
	assert.Equal(t, digest.FromBytes([]byte("linked")), result.OutputFiles[0].Digest)
}

func TestAddDirectoriesMismatched(t *testing.T) {
	root := t.TempDir()
	m, _ := newTestManifest(t, Options{ExecRoot: root})

	file := writeFile(t, root, "plain.txt", []byte("x"), 0644)
	err := m.AddDirectories([]string{file})

	var mismatched *MismatchedOutputError
	require.ErrorAs(t, err, &mismatched)
	assert.Equal(t, "file", mismatched.Actual)
	assert.Equal(t, "directory", mismatched.Expected)
}

func TestAddDirectoriesSymlinkMismatched(t *testing.T) {
	root := t.TempDir()
	m, _ := newTestManifest(t, Options{ExecRoot: root, AllowSymlinks: true})

	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0755))
	link := filepath.Join(root, "dirlink")
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), link))

	// A symlink where a directory was declared is mismatched even
	// when symlink outputs are allowed: the probe does not follow it.
	err := m.AddDirectories([]string{link})
	var mismatched *MismatchedOutputError
	require.ErrorAs(t, err, &mismatched)
	assert.Equal(t, "symbolic link", mismatched.Actual)
}

func TestAddDirectoriesMissingSkipped(t *testing.T) {
	root := t.TempDir()
	m, result := newTestManifest(t, Options{ExecRoot: root})

	require.NoError(t, m.AddDirectories([]string{filepath.Join(root, "ghost")}))
	assert.Empty(t, result.OutputDirectories)
	assert.Empty(t, m.BlobUnits())
	assert.Empty(t, m.FileBlobs())
}

func TestAddDirectoriesSnapshot(t *testing.T) {
	root := t.TempDir()
	collector := stats.NewCollector()
	m, result := newTestManifest(t, Options{ExecRoot: root, Stats: collector})

	outDir := filepath.Join(root, "out")
	writeFile(t, outDir, "a.txt", []byte("0123456789"), 0644)
	writeFile(t, outDir, "sub/b.txt", []byte("01234"), 0644)

	require.NoError(t, m.AddDirectories([]string{outDir}))

	require.Len(t, result.OutputDirectories, 1)
	od := result.OutputDirectories[0]
	assert.Equal(t, "out", od.Path)

	// Exactly one upload unit: the serialized root tree. Individual
	// directory nodes travel embedded inside it.
	require.Len(t, m.BlobUnits(), 1)
	unit, ok := m.BlobUnits()[od.TreeDigest]
	require.True(t, ok)
	assert.Equal(t, od.TreeDigest, unit.Digest)
	assert.Equal(t, digest.FromBytes(unit.Content), unit.Digest)

	// Two file digests, left in the file registry for streaming.
	files := m.FileBlobs()
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(outDir, "a.txt"),
		files[digest.FromBytes([]byte("0123456789"))])
	assert.Equal(t, filepath.Join(outDir, "sub", "b.txt"),
		files[digest.FromBytes([]byte("01234"))])

	// Two directory nodes in total: root plus sub.
	assert.Equal(t, int64(2), collector.Snapshot().TreeNodes)
}

func TestAddContentInlineBudget(t *testing.T) {
	m, _ := newTestManifest(t, Options{InlineLimit: 10})

	// 6 bytes: within budget.
	p1 := m.AddContent([]byte("abcdef"), NeverInsert)
	assert.Equal(t, []byte("abcdef"), p1.Inline)
	assert.Nil(t, p1.Digest)

	// 6 more bytes would exceed 10: inline empty.
	p2 := m.AddContent([]byte("ghijkl"), NeverInsert)
	assert.Empty(t, p2.Inline)
	assert.Nil(t, p2.Digest)

	// 4 bytes still fit: the over-budget call did not consume budget.
	p3 := m.AddContent([]byte("mnop"), NeverInsert)
	assert.Equal(t, []byte("mnop"), p3.Inline)

	// Budget now exhausted; everything after is empty.
	p4 := m.AddContent([]byte("q"), NeverInsert)
	assert.Empty(t, p4.Inline)
}

func TestAddContentAlwaysInsert(t *testing.T) {
	m, _ := newTestManifest(t, Options{InlineLimit: 100})

	content := []byte("both inline and referenced")
	p := m.AddContent(content, AlwaysInsert)
	assert.Equal(t, content, p.Inline)
	require.NotNil(t, p.Digest)
	assert.Equal(t, digest.FromBytes(content), *p.Digest)

	unit, ok := m.BlobUnits()[*p.Digest]
	require.True(t, ok)
	assert.Equal(t, content, unit.Content)
}

func TestAddContentInsertAboveLimit(t *testing.T) {
	m, _ := newTestManifest(t, Options{InlineLimit: 5})

	// Fits: no reference.
	p1 := m.AddContent([]byte("abc"), InsertAboveLimit)
	assert.Equal(t, []byte("abc"), p1.Inline)
	assert.Nil(t, p1.Digest)
	assert.Empty(t, m.BlobUnits())

	// Does not fit: reference attached, unit registered.
	big := []byte("this does not fit")
	p2 := m.AddContent(big, InsertAboveLimit)
	assert.Empty(t, p2.Inline)
	require.NotNil(t, p2.Digest)
	assert.Equal(t, digest.FromBytes(big), *p2.Digest)
	assert.Len(t, m.BlobUnits(), 1)
}

func TestAddStdoutStderr(t *testing.T) {
	m, result := newTestManifest(t, Options{InlineLimit: 8})

	m.AddStdout([]byte("stdout"), AlwaysInsert)
	assert.Equal(t, []byte("stdout"), result.StdoutRaw)
	require.NotNil(t, result.StdoutDigest)
	assert.Equal(t, digest.FromBytes([]byte("stdout")), *result.StdoutDigest)

	// Budget now 2 bytes; stderr does not fit.
	m.AddStderr([]byte("stderr overflow"), InsertAboveLimit)
	assert.Empty(t, result.StderrRaw)
	require.NotNil(t, result.StderrDigest)
	assert.Equal(t, digest.FromBytes([]byte("stderr overflow")), *result.StderrDigest)
}

func TestDedupIdenticalFiles(t *testing.T) {
	root := t.TempDir()
	m, result := newTestManifest(t, Options{ExecRoot: root})

	a := writeFile(t, root, "a.bin", []byte("same bytes"), 0644)
	b := writeFile(t, root, "b.bin", []byte("same bytes"), 0644)
	require.NoError(t, m.AddFiles([]string{a, b}, NeverInsert))

	// Both descriptors recorded, one blob to upload.
	assert.Len(t, result.OutputFiles, 2)
	assert.Len(t, m.FileBlobs(), 1)
}
