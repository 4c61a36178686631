package scanner

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/fibre/internal/component"
	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/watcher"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newScanner() *ComponentScanner {
	return NewComponentScanner(component.NewRegistry(component.Config{}), Options{
		ExcludePatterns: []string{"*_test.html"},
	})
}

func TestComponentName(t *testing.T) {
	assert.Equal(t, "user-card", ComponentName("components/user-card.html"))
	assert.Equal(t, "nav-bar", ComponentName("/abs/ui/Nav-Bar.html"))
	assert.Equal(t, "badge", ComponentName("badge.html"))
}

func TestMatches(t *testing.T) {
	s := newScanner()
	assert.True(t, s.Matches("ui/card.html"))
	assert.False(t, s.Matches("ui/card_test.html"))
	assert.False(t, s.Matches("ui/card.templ"))

	custom := NewComponentScanner(component.NewRegistry(component.Config{}), Options{Extension: ".fbr"})
	assert.True(t, custom.Matches("ui/card.fbr"))
	assert.False(t, custom.Matches("ui/card.html"))
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app-page.html"), `<main><app-title --text="title"></app-title></main>`)
	writeFile(t, filepath.Join(dir, "parts", "app-title.html"), `<h1>${text}</h1>`)
	writeFile(t, filepath.Join(dir, "parts", "app-title_test.html"), `<p></p><p></p>`)
	writeFile(t, filepath.Join(dir, "README.md"), `# components`)
	writeFile(t, filepath.Join(dir, ".git", "hidden.html"), `<p></p>`)

	s := newScanner()
	require.NoError(t, s.ScanDirectory(dir))

	assert.Equal(t, []string{"app-page", "app-title"}, s.GetRegistry().Names())
	assert.Equal(t, []string{
		filepath.Join(dir, "app-page.html"),
		filepath.Join(dir, "parts", "app-title.html"),
	}, s.Files())

	f, ok := s.GetRegistry().Get("app-page")
	require.True(t, ok)
	c, err := f.New(map[string]any{"title": "Docs"})
	require.NoError(t, err)
	assert.Equal(t, `<main><h1>Docs</h1></main>`, c.Render())
}

func TestScanPathsAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good-card.html"), `<p>${x}</p>`)
	writeFile(t, filepath.Join(dir, "two-roots.html"), `<p></p><p></p>`)
	writeFile(t, filepath.Join(dir, "bad-expr.html"), `<p>${a = 1}</p>`)

	s := newScanner()
	err := s.ScanPaths([]string{dir})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, stderrors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	for _, e := range merr.Errors {
		assert.True(t, errors.IsCompileError(e))
	}
	assert.Contains(t, err.Error(), filepath.Join(dir, "two-roots.html"))
	assert.Contains(t, err.Error(), filepath.Join(dir, "bad-expr.html"))

	assert.Equal(t, []string{"good-card"}, s.GetRegistry().Names())
}

func TestScanPathsMissingDirectory(t *testing.T) {
	s := newScanner()
	err := s.ScanPaths([]string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))
}

func TestDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a", "info-box.html"), `<p>a</p>`)
	writeFile(t, filepath.Join(dir, "b", "info-box.html"), `<p>b</p>`)

	s := newScanner()
	err := s.ScanDirectory(dir)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
	assert.True(t, s.GetRegistry().Has("info-box"))
}

func TestUnchangedFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello-box.html")
	writeFile(t, path, `<p>hello</p>`)

	s := newScanner()
	events := s.GetRegistry().Watch()

	require.NoError(t, s.ScanDirectory(dir))
	assert.Equal(t, component.EventTypeDefined, (<-events).Type)

	require.NoError(t, s.ScanDirectory(dir))
	assert.Empty(t, events)

	writeFile(t, path, `<p>hello again</p>`)
	require.NoError(t, s.ScanFile(path))
	assert.Equal(t, component.EventTypeRedefined, (<-events).Type)
}

func TestHandleChanges(t *testing.T) {
	dir := t.TempDir()
	card := filepath.Join(dir, "note-card.html")
	writeFile(t, card, `<p>${text}</p>`)

	s := newScanner()
	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeCreated, Path: card},
		{Type: watcher.EventTypeCreated, Path: filepath.Join(dir, "notes.txt")},
	}))
	assert.True(t, s.GetRegistry().Has("note-card"))

	require.NoError(t, os.Remove(card))
	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeDeleted, Path: card},
	}))
	assert.False(t, s.GetRegistry().Has("note-card"))
	assert.Empty(t, s.Files())
}

func TestFailedFileIsRetried(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fix-me.html")
	writeFile(t, path, `<p>${'open}</p>`)

	s := newScanner()
	require.Error(t, s.ScanFile(path))
	assert.False(t, s.GetRegistry().Has("fix-me"))

	writeFile(t, path, `<p>${'closed'}</p>`)
	require.NoError(t, s.ScanFile(path))
	assert.True(t, s.GetRegistry().Has("fix-me"))
}
