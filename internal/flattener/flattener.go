// Package flattener unpacks a repository archive into one flat
// destination directory. Every regular file is written under a
// deterministic collision-free name derived from its archive path;
// directory entries, symlinks and special files are skipped. The
// mapping back to the original paths can be recorded in a per-run
// SQLite source map.

package flattener

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/minhdq/repo-miner/cfg"
	"github.com/minhdq/repo-miner/internal/model"
	"github.com/minhdq/repo-miner/pkg/apperror"
	"github.com/minhdq/repo-miner/pkg/db"
	"github.com/minhdq/repo-miner/pkg/log"
)

type Options struct {
	Dest      string
	DbPath    string
	ReposFile string
	Include   []*regexp.Regexp
	Exclude   []*regexp.Regexp
	MaxFiles  int
	MaxSize   int64
	DryRun    bool
}

type Result struct {
	Extracted int
	Recorded  int
	Skipped   int
}

type Flattener struct {
	Logger log.Logger
	Config *cfg.Config
	Opts   Options
}

func NewFlattener(logger log.Logger, config *cfg.Config, opts Options) (*Flattener, error) {
	if opts.Dest == "" {
		opts.Dest = config.Unpack.DestDir
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = config.Unpack.MaxFiles
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = config.Unpack.MaxSize
	}
	return &Flattener{
		Logger: logger,
		Config: config,
		Opts:   opts,
	}, nil
}

// Unpack extracts archivePath into the destination directory. Any
// entry that cannot be read aborts the whole run; partial output is
// left on disk.
func (f *Flattener) Unpack(ctx context.Context, archivePath string) (*Result, error) {
	if !f.Opts.DryRun {
		if err := os.MkdirAll(f.Opts.Dest, 0o755); err != nil {
			return nil, apperror.Filesystem("cannot create destination %s: %v", f.Opts.Dest, err)
		}
	}

	// The archive filename stem is the commit the archive was cut
	// from; the repos listing maps it back to repository and branch.
	commit := archiveStem(archivePath)
	repoName, branchName := "", ""
	if f.Opts.ReposFile != "" {
		listing, err := loadReposListing(f.Opts.ReposFile)
		if err != nil {
			return nil, err
		}
		if entry, ok := listing[commit]; ok {
			repoName, branchName = entry.repo, entry.branch
		}
	}

	names := NewNameAllocator()
	result := &Result{}
	rows := make([]model.SourceMap, 0)

	walkFn := func(src string, size int64, r io.Reader) error {
		if result.Extracted >= f.Opts.MaxFiles {
			return errStop
		}

		src = cleanPath(src)
		if src == "" || !f.selected(ctx, src, size) {
			result.Skipped++
			return nil
		}

		flat := names.Claim(FlatName(src))
		f.Logger.Debug(ctx, "extract: %q -> %q", src, flat)

		if !f.Opts.DryRun {
			if err := f.writeFile(flat, r); err != nil {
				return err
			}
		}
		result.Extracted++

		if f.Opts.DbPath != "" {
			rows = append(rows, model.SourceMap{
				FlatName:     flat,
				OriginalPath: src,
				RepoName:     repoName,
				BranchName:   branchName,
				CommitId:     commit,
			})
		}
		return nil
	}

	var err error
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		err = f.walkZip(archivePath, walkFn)
	case strings.HasSuffix(archivePath, ".tar.gz") || strings.HasSuffix(archivePath, ".tgz"):
		err = f.walkTarGz(archivePath, walkFn)
	default:
		return nil, apperror.Archive("unsupported archive format: %s", archivePath)
	}
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	if f.Opts.DbPath != "" {
		if err := f.record(rows); err != nil {
			return nil, err
		}
		result.Recorded = len(rows)
	}

	f.Logger.Info(ctx, "extracted: %s: %d files, %d skipped", archivePath, result.Extracted, result.Skipped)
	return result, nil
}

// errStop ends the walk early once the file budget is reached.
var errStop = errors.New("file budget reached")

// selected applies the hidden-path, size and pattern filters.
func (f *Flattener) selected(ctx context.Context, src string, size int64) bool {
	if strings.HasPrefix(src, ".") || strings.Contains(src, "/.") {
		return false
	}
	if size > f.Opts.MaxSize {
		f.Logger.Info(ctx, "skipped: %q (%d bytes)", src, size)
		return false
	}
	for _, pat := range f.Opts.Exclude {
		if pat.MatchString(src) {
			return false
		}
	}
	if len(f.Opts.Include) > 0 {
		for _, pat := range f.Opts.Include {
			if pat.MatchString(src) {
				return true
			}
		}
		return false
	}
	return true
}

func (f *Flattener) writeFile(flat string, r io.Reader) error {
	out, err := os.Create(filepath.Join(f.Opts.Dest, flat))
	if err != nil {
		return apperror.Filesystem("cannot create %s: %v", flat, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return apperror.Archive("cannot extract %s: %v", flat, err)
	}
	if err := out.Close(); err != nil {
		return apperror.Filesystem("cannot write %s: %v", flat, err)
	}
	return nil
}

func (f *Flattener) walkZip(archivePath string, fn func(string, int64, io.Reader) error) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return apperror.Archive("cannot open archive %s: %v", archivePath, err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if !file.Mode().IsRegular() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return apperror.Archive("cannot open entry %s: %v", file.Name, err)
		}
		err = fn(file.Name, int64(file.UncompressedSize64), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *Flattener) walkTarGz(archivePath string, fn func(string, int64, io.Reader) error) error {
	fp, err := os.Open(archivePath)
	if err != nil {
		return apperror.Archive("cannot open archive %s: %v", archivePath, err)
	}
	defer fp.Close()

	gz, err := gzip.NewReader(fp)
	if err != nil {
		return apperror.Archive("cannot decompress %s: %v", archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return apperror.Archive("corrupt archive %s: %v", archivePath, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(header.Name, header.Size, tr); err != nil {
			return err
		}
	}
}

// record writes the source map into a fresh per-run SQLite file.
func (f *Flattener) record(rows []model.SourceMap) error {
	sqlite, err := db.NewSqlite(f.Config, f.Opts.DbPath)
	if err != nil {
		return apperror.Filesystem("cannot open source map %s: %v", f.Opts.DbPath, err)
	}
	defer sqlite.Close()

	if err := sqlite.Reset(&model.SourceMap{}); err != nil {
		return apperror.Filesystem("cannot reset source map %s: %v", f.Opts.DbPath, err)
	}

	if len(rows) == 0 {
		return nil
	}

	gdb, err := sqlite.Db()
	if err != nil {
		return apperror.Filesystem("cannot open source map %s: %v", f.Opts.DbPath, err)
	}
	if err := gdb.CreateInBatches(rows, 100).Error; err != nil {
		return apperror.Filesystem("cannot write source map %s: %v", f.Opts.DbPath, err)
	}
	return nil
}

// cleanPath normalizes an entry path to a clean relative form.
func cleanPath(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// archiveStem strips the directory and the archive extension, leaving
// the commit id the archive was named after.
func archiveStem(archivePath string) string {
	base := filepath.Base(archivePath)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

type reposEntry struct {
	repo   string
	branch string
}

// loadReposListing parses `owner name branch commit` lines, keyed by
// commit.
func loadReposListing(path string) (map[string]reposEntry, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, apperror.Filesystem("cannot open repos listing %s: %v", path, err)
	}
	defer fp.Close()

	listing := make(map[string]reposEntry)
	scanner := bufio.NewScanner(fp)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		listing[fields[3]] = reposEntry{
			repo:   fields[0] + "/" + fields[1],
			branch: fields[2],
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperror.Filesystem("cannot read repos listing %s: %v", path, err)
	}
	return listing, nil
}
