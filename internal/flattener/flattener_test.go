package flattener

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/minhdq/repo-miner/cfg"
	"github.com/minhdq/repo-miner/internal/model"
	"github.com/minhdq/repo-miner/pkg/apperror"
	"github.com/minhdq/repo-miner/pkg/db"
	"github.com/minhdq/repo-miner/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name    string
	content string
}

func buildZip(t *testing.T, path string, entries []zipEntry) {
	t.Helper()
	fp, err := os.Create(path)
	require.NoError(t, err)
	defer fp.Close()

	zw := zip.NewWriter(fp)
	for _, entry := range entries {
		w, err := zw.Create(entry.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entry.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func buildTarGz(t *testing.T, path string, entries []zipEntry) {
	t.Helper()
	fp, err := os.Create(path)
	require.NoError(t, err)
	defer fp.Close()

	gz := gzip.NewWriter(fp)
	tw := tar.NewWriter(gz)
	for _, entry := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     entry.name,
			Mode:     0o644,
			Size:     int64(len(entry.content)),
			Typeflag: tar.TypeReg,
		}))
		_, err = tw.Write([]byte(entry.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func newTestFlattener(t *testing.T, opts Options) *Flattener {
	t.Helper()
	loader, _ := cfg.NewMockLoader()
	config, err := loader.Load()
	require.NoError(t, err)

	logger, _ := log.NewCslLogger()
	f, err := NewFlattener(logger, config, opts)
	require.NoError(t, err)
	return f
}

func readSourceMap(t *testing.T, config *cfg.Config, path string) []model.SourceMap {
	t.Helper()
	sqlite, err := db.NewSqlite(config, path)
	require.NoError(t, err)
	defer sqlite.Close()

	gdb, err := sqlite.Db()
	require.NoError(t, err)

	var rows []model.SourceMap
	require.NoError(t, gdb.Order("flat_name").Find(&rows).Error)
	return rows
}

func TestUnpack_FlattensWithoutCollision(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.zip")
	dest := filepath.Join(tmp, "out")
	buildZip(t, archive, []zipEntry{
		{"src/a.txt", "source side"},
		{"test/a.txt", "test side"},
	})

	f := newTestFlattener(t, Options{Dest: dest})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Extracted)

	// Same basename, different directories, no collision
	srcContent, err := os.ReadFile(filepath.Join(dest, "src__a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "source side", string(srcContent))

	testContent, err := os.ReadFile(filepath.Join(dest, "test__a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "test side", string(testContent))
}

func TestUnpack_RoundTripThroughSourceMap(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "deadbeef.zip")
	dest := filepath.Join(tmp, "out")
	dbPath := filepath.Join(tmp, "srcmap.db")
	entries := []zipEntry{
		{"src/main.go", "package main"},
		{"src/util/helper.go", "package util"},
		{"README.md", "# readme"},
	}
	buildZip(t, archive, entries)

	f := newTestFlattener(t, Options{Dest: dest, DbPath: dbPath})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Extracted)
	assert.Equal(t, 3, result.Recorded)

	rows := readSourceMap(t, f.Config, dbPath)
	require.Len(t, rows, 3)

	// Every recorded pair must round-trip to the archived content
	original := make(map[string]string, len(entries))
	for _, entry := range entries {
		original[entry.name] = entry.content
	}
	seen := make(map[string]bool)
	for _, row := range rows {
		assert.False(t, seen[row.FlatName], "flat name %q not unique", row.FlatName)
		seen[row.FlatName] = true

		content, err := os.ReadFile(filepath.Join(dest, row.FlatName))
		require.NoError(t, err)
		assert.Equal(t, original[row.OriginalPath], string(content))
		assert.Equal(t, "deadbeef", row.CommitId)
	}
}

func TestUnpack_SkipsDirectoriesAndHiddenPaths(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.zip")
	dest := filepath.Join(tmp, "out")
	buildZip(t, archive, []zipEntry{
		{"src/", ""},
		{"src/a.txt", "kept"},
		{".github/workflows/ci.yml", "hidden root"},
		{"src/.secret", "hidden nested"},
	})

	f := newTestFlattener(t, Options{Dest: dest})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Extracted)

	files, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src__a.txt", files[0].Name())
}

func TestUnpack_DisambiguatesEncodingCollision(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.zip")
	dest := filepath.Join(tmp, "out")
	buildZip(t, archive, []zipEntry{
		{"a/b.txt", "slash"},
		{"a__b.txt", "literal"},
	})

	f := newTestFlattener(t, Options{Dest: dest})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Extracted)

	first, err := os.ReadFile(filepath.Join(dest, "a__b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "slash", string(first))

	second, err := os.ReadFile(filepath.Join(dest, "a__b.txt~2"))
	require.NoError(t, err)
	assert.Equal(t, "literal", string(second))
}

func TestUnpack_IdempotentNameSet(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.zip")
	buildZip(t, archive, []zipEntry{
		{"a/b.txt", "one"},
		{"a__b.txt", "two"},
		{"c/d/e.txt", "three"},
	})

	nameSet := func(dest string) map[string]bool {
		f := newTestFlattener(t, Options{Dest: dest})
		_, err := f.Unpack(context.Background(), archive)
		require.NoError(t, err)

		files, err := os.ReadDir(dest)
		require.NoError(t, err)
		names := make(map[string]bool, len(files))
		for _, file := range files {
			names[file.Name()] = true
		}
		return names
	}

	first := nameSet(filepath.Join(tmp, "out1"))
	second := nameSet(filepath.Join(tmp, "out2"))
	assert.Equal(t, first, second)
}

func TestUnpack_TarGz(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.tar.gz")
	dest := filepath.Join(tmp, "out")
	buildTarGz(t, archive, []zipEntry{
		{"src/a.txt", "tarred"},
	})

	f := newTestFlattener(t, Options{Dest: dest})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Extracted)

	content, err := os.ReadFile(filepath.Join(dest, "src__a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "tarred", string(content))
}

func TestUnpack_CorruptArchive(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "broken.zip")
	require.NoError(t, os.WriteFile(archive, []byte("this is not a zip"), 0o644))

	f := newTestFlattener(t, Options{Dest: filepath.Join(tmp, "out")})
	_, err := f.Unpack(context.Background(), archive)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrArchive)
}

func TestUnpack_UnsupportedFormat(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.rar")
	require.NoError(t, os.WriteFile(archive, []byte("whatever"), 0o644))

	f := newTestFlattener(t, Options{Dest: filepath.Join(tmp, "out")})
	_, err := f.Unpack(context.Background(), archive)
	assert.ErrorIs(t, err, apperror.ErrArchive)
}

func TestUnpack_MaxSizeSkipsLargeFiles(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.zip")
	dest := filepath.Join(tmp, "out")
	buildZip(t, archive, []zipEntry{
		{"small.txt", "ok"},
		{"big.txt", "0123456789012345678901234567890123456789"},
	})

	f := newTestFlattener(t, Options{Dest: dest, MaxSize: 10})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Extracted)
	assert.NoFileExists(t, filepath.Join(dest, "big.txt"))
}

func TestUnpack_MaxFilesStopsEarly(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.zip")
	dest := filepath.Join(tmp, "out")
	buildZip(t, archive, []zipEntry{
		{"a.txt", "1"},
		{"b.txt", "2"},
		{"c.txt", "3"},
	})

	f := newTestFlattener(t, Options{Dest: dest, MaxFiles: 2})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Extracted)
}

func TestUnpack_IncludeExcludePatterns(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "repo.zip")
	dest := filepath.Join(tmp, "out")
	buildZip(t, archive, []zipEntry{
		{"src/main.go", "go"},
		{"src/main_test.go", "test"},
		{"docs/index.md", "docs"},
	})

	f := newTestFlattener(t, Options{
		Dest:    dest,
		Include: []*regexp.Regexp{regexp.MustCompile(`\.go$`)},
		Exclude: []*regexp.Regexp{regexp.MustCompile(`_test\.go$`)},
	})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Extracted)
	assert.FileExists(t, filepath.Join(dest, "src__main.go"))
}

func TestUnpack_DryRunRecordsWithoutWriting(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "cafebabe.zip")
	dest := filepath.Join(tmp, "out")
	dbPath := filepath.Join(tmp, "srcmap.db")
	buildZip(t, archive, []zipEntry{
		{"src/a.txt", "content"},
	})

	f := newTestFlattener(t, Options{Dest: dest, DbPath: dbPath, DryRun: true})
	result, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Extracted)
	assert.Equal(t, 1, result.Recorded)

	// Nothing on disk besides the source map
	assert.NoDirExists(t, dest)
	rows := readSourceMap(t, f.Config, dbPath)
	require.Len(t, rows, 1)
	assert.Equal(t, "src__a.txt", rows[0].FlatName)
	assert.Equal(t, "src/a.txt", rows[0].OriginalPath)
}

func TestUnpack_ReposListingFillsRepoColumns(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "46ec6a63.zip")
	dest := filepath.Join(tmp, "out")
	dbPath := filepath.Join(tmp, "srcmap.db")
	reposFile := filepath.Join(tmp, "repos.lst")
	buildZip(t, archive, []zipEntry{
		{"src/a.java", "class A {}"},
	})
	require.NoError(t, os.WriteFile(reposFile,
		[]byte("ReactiveX RxJava 2.x 46ec6a63\nelastic elasticsearch master b1762d69\n"), 0o644))

	f := newTestFlattener(t, Options{Dest: dest, DbPath: dbPath, ReposFile: reposFile})
	_, err := f.Unpack(context.Background(), archive)
	require.NoError(t, err)

	rows := readSourceMap(t, f.Config, dbPath)
	require.Len(t, rows, 1)
	assert.Equal(t, "ReactiveX/RxJava", rows[0].RepoName)
	assert.Equal(t, "2.x", rows[0].BranchName)
	assert.Equal(t, "46ec6a63", rows[0].CommitId)
}

func TestUnpack_SourceMapFreshPerRun(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "srcmap.db")

	first := filepath.Join(tmp, "first.zip")
	buildZip(t, first, []zipEntry{
		{"one.txt", "1"},
		{"two.txt", "2"},
	})
	second := filepath.Join(tmp, "second.zip")
	buildZip(t, second, []zipEntry{
		{"three.txt", "3"},
	})

	f1 := newTestFlattener(t, Options{Dest: filepath.Join(tmp, "out1"), DbPath: dbPath})
	_, err := f1.Unpack(context.Background(), first)
	require.NoError(t, err)

	// Second run reuses the same file but starts from an empty table
	f2 := newTestFlattener(t, Options{Dest: filepath.Join(tmp, "out2"), DbPath: dbPath})
	_, err = f2.Unpack(context.Background(), second)
	require.NoError(t, err)

	rows := readSourceMap(t, f2.Config, dbPath)
	require.Len(t, rows, 1)
	assert.Equal(t, "three.txt", rows[0].FlatName)
}
