// Package scanner discovers component template files and registers them.
//
// Every file with the configured extension under a scan path becomes one
// component, named after the file's base name: components/user-card.html
// defines <user-card>. Files are read and checksummed first, then all
// changed definitions are compiled together so components may use each
// other regardless of the order they were found in. Unchanged files are
// skipped on later scans.
package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/conneroisu/fibre/internal/component"
	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/logging"
	"github.com/conneroisu/fibre/internal/watcher"
)

// Options configures a ComponentScanner.
type Options struct {
	// Extension selects component files. Defaults to ".html".
	Extension string
	// ExcludePatterns are matched against file base names.
	ExcludePatterns []string
	Logger          logging.Logger
}

// ComponentScanner keeps a component registry in sync with files on disk.
type ComponentScanner struct {
	registry  *component.Registry
	extension string
	exclude   []string
	logger    logging.Logger

	mu     sync.Mutex
	hashes map[string]uint32
	names  map[string]string
}

// NewComponentScanner creates a scanner that defines components in registry.
func NewComponentScanner(registry *component.Registry, opts Options) *ComponentScanner {
	ext := opts.Extension
	if ext == "" {
		ext = ".html"
	}
	return &ComponentScanner{
		registry:  registry,
		extension: ext,
		exclude:   opts.ExcludePatterns,
		logger:    logging.OrNop(opts.Logger).WithComponent("scanner"),
		hashes:    make(map[string]uint32),
		names:     make(map[string]string),
	}
}

// GetRegistry returns the component registry
func (s *ComponentScanner) GetRegistry() *component.Registry {
	return s.registry
}

// ComponentName returns the tag name a component file defines.
func ComponentName(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Files returns the paths of all known component files in sorted order.
func (s *ComponentScanner) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]string, 0, len(s.names))
	for path := range s.names {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// Matches reports whether path names a component file.
func (s *ComponentScanner) Matches(path string) bool {
	return watcher.ExtensionFilter(s.extension)(path) && watcher.ExcludeFilter(s.exclude)(path)
}

// ScanDirectory scans a directory tree for component files.
func (s *ComponentScanner) ScanDirectory(dir string) error {
	return s.ScanPaths([]string{dir})
}

// ScanPaths scans each directory tree in dirs and defines every new or
// changed component file in one batch. Per-file failures are collected in
// a *multierror.Error; the remaining files are still registered.
func (s *ComponentScanner) ScanPaths(dirs []string) error {
	var files []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && !watcher.NoGitFilter(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if s.Matches(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return errors.NewIOError(errors.ErrCodeFileNotFound, fmt.Sprintf("scanning %s", dir), err)
		}
	}

	return s.define(files)
}

// ScanFile defines the component in a single file.
func (s *ComponentScanner) ScanFile(path string) error {
	return s.define([]string{path})
}

// RemoveFile unregisters the component defined by path.
func (s *ComponentScanner) RemoveFile(path string) {
	s.mu.Lock()
	name, ok := s.names[path]
	delete(s.names, path)
	delete(s.hashes, path)
	s.mu.Unlock()

	if ok {
		s.registry.Remove(name)
		s.logger.Info(context.Background(), "component removed", "name", name, "path", path)
	}
}

// HandleChanges applies a batch of file changes. It is a watcher.ChangeHandler.
func (s *ComponentScanner) HandleChanges(events []watcher.ChangeEvent) error {
	var changed []string
	for _, event := range events {
		if !s.Matches(event.Path) {
			continue
		}
		if event.Removal() {
			if _, err := os.Stat(event.Path); err != nil {
				s.RemoveFile(event.Path)
				continue
			}
		}
		changed = append(changed, event.Path)
	}
	return s.define(changed)
}

type source struct {
	path string
	name string
	sum  uint32
}

func (s *ComponentScanner) define(files []string) error {
	var result *multierror.Error

	defs := make(map[string]component.Options)
	sources := make(map[string]source)

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			result = multierror.Append(result, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("reading %s", path), err))
			continue
		}

		src := source{path: path, name: ComponentName(path), sum: crc32.ChecksumIEEE(content)}
		if prev, ok := sources[src.name]; ok {
			result = multierror.Append(result, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("component %q is defined by both %s and %s", src.name, prev.path, path)))
			continue
		}
		if s.unchanged(src) {
			continue
		}

		defs[src.name] = component.Options{Template: string(content)}
		sources[src.name] = src
	}

	if len(defs) == 0 {
		return result.ErrorOrNil()
	}

	failed := make(map[string]bool)
	op := logging.StartOperation(s.logger, "define")
	err := s.registry.DefineAll(defs)
	op.End(context.Background(), "components", len(defs))
	if err != nil {
		var merr *multierror.Error
		if !stderrors.As(err, &merr) {
			return err
		}
		for _, e := range merr.Errors {
			var de *component.DefineError
			if !stderrors.As(e, &de) {
				result = multierror.Append(result, e)
				continue
			}
			failed[de.Name] = true
			result = multierror.Append(result, withFile(de.Err, sources[de.Name].path))
		}
	}

	s.mu.Lock()
	for name, src := range sources {
		if failed[name] {
			delete(s.hashes, src.path)
			continue
		}
		s.hashes[src.path] = src.sum
		s.names[src.path] = name
	}
	s.mu.Unlock()

	s.logger.Info(context.Background(), "components scanned", "defined", len(defs)-len(failed), "failed", len(failed))
	return result.ErrorOrNil()
}

func (s *ComponentScanner) unchanged(src source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum, ok := s.hashes[src.path]
	return ok && sum == src.sum && s.registry.Has(src.name)
}

func withFile(err error, path string) error {
	var fe *errors.FibreError
	if stderrors.As(err, &fe) {
		return fe.WithFile(path)
	}
	return fmt.Errorf("%s: %w", path, err)
}
