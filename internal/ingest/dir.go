package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ArchiveDir is the per-directory folder processed files are moved into.
const ArchiveDir = "Uploaded"

// DirSource loads extracts laid out as <Root>/<origin>/<directory>/<files>.
//
// Each origin is read by its own goroutine; Load returns only after every
// origin finished, so callers always see both origins' rows or an error.
type DirSource struct {
	Root        string
	Origins     []string // read order; the first origin's rows come first
	MaxFileSize int64

	mu     sync.Mutex
	loaded map[string][]string // directory -> files read by the last Load
}

// NewDirSource creates a source rooted at root.
func NewDirSource(root string, origins []string, maxFileSize int64) *DirSource {
	return &DirSource{
		Root:        root,
		Origins:     origins,
		MaxFileSize: maxFileSize,
		loaded:      make(map[string][]string),
	}
}

type originLoad struct {
	tables []*Table
	files  []string
}

// Load reads every supported file of directory under each origin and
// returns them concatenated with an OriginColumn. Empty and corrupt files
// are skipped with a warning. Returns ErrNoInput when nothing was read.
func (s *DirSource) Load(ctx context.Context, directory string) (*Table, error) {
	results := make([]originLoad, len(s.Origins))

	g, gctx := errgroup.WithContext(ctx)
	for i, origin := range s.Origins {
		g.Go(func() error {
			res, err := s.loadOrigin(gctx, origin, directory)
			if err != nil {
				return fmt.Errorf("load %s/%s: %w", origin, directory, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		tables []*Table
		files  []string
	)
	for _, res := range results {
		tables = append(tables, res.tables...)
		files = append(files, res.files...)
	}

	s.mu.Lock()
	if s.loaded == nil {
		s.loaded = make(map[string][]string)
	}
	s.loaded[directory] = files
	s.mu.Unlock()

	if len(tables) == 0 {
		return nil, fmt.Errorf("%s: %w", directory, ErrNoInput)
	}
	return Concat(tables...), nil
}

func (s *DirSource) loadOrigin(ctx context.Context, origin, directory string) (originLoad, error) {
	var res originLoad

	dir := filepath.Join(s.Root, origin, directory)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		path := filepath.Join(dir, name)
		tables, err := ReadFile(path, s.MaxFileSize)
		if errors.Is(err, ErrEmptyFile) || errors.Is(err, ErrCorruptFile) {
			slog.Warn("skipping unreadable file", "origin", origin, "file", path, "error", err)
			continue
		}
		if err != nil {
			return res, err
		}

		for _, t := range tables {
			for i := range t.Rows {
				t.Rows[i].Source = filepath.Join(origin, directory, t.Rows[i].Source)
			}
			res.tables = append(res.tables, t.WithColumn(OriginColumn, origin))
		}
		res.files = append(res.files, path)
	}

	return res, nil
}

// Files returns the paths read by the most recent Load of directory.
func (s *DirSource) Files(directory string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loaded[directory]...)
}

// Archive moves the files read by the last Load of directory into an
// ArchiveDir folder next to them.
func (s *DirSource) Archive(directory string) error {
	for _, path := range s.Files(directory) {
		dest := filepath.Join(filepath.Dir(path), ArchiveDir)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", ArchiveDir, err)
		}
		if err := os.Rename(path, filepath.Join(dest, filepath.Base(path))); err != nil {
			return fmt.Errorf("archive %s: %w", filepath.Base(path), err)
		}
	}

	s.mu.Lock()
	delete(s.loaded, directory)
	s.mu.Unlock()
	return nil
}
