package component

import (
	stderrors "errors"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/expression"
	"github.com/conneroisu/fibre/internal/scheduler"
	"github.com/conneroisu/fibre/internal/template"
)

func TestRegistryDefine(t *testing.T) {
	r := NewRegistry(Config{})
	ch := r.Watch()

	f, err := r.Define("hello-world", Options{Template: `<p>Hello ${name}</p>`})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", f.Name())
	assert.Len(t, f.Template().Directives, 1)

	ev := <-ch
	assert.Equal(t, EventTypeDefined, ev.Type)
	assert.Equal(t, "hello-world", ev.Name)
	assert.Same(t, f, ev.Factory)

	_, err = r.Define("hello-world", Options{Template: `<p>Hi ${name}</p>`})
	require.NoError(t, err)
	ev = <-ch
	assert.Equal(t, EventTypeRedefined, ev.Type)

	assert.True(t, r.Has("hello-world"))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, []string{"hello-world"}, r.Names())

	r.Remove("hello-world")
	ev = <-ch
	assert.Equal(t, EventTypeRemoved, ev.Type)
	assert.False(t, r.Has("hello-world"))

	r.UnWatch(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestRegistryRejectsInvalidNames(t *testing.T) {
	r := NewRegistry(Config{})

	_, err := r.Define("", Options{Template: `<p></p>`})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))

	_, err = r.Define("div", Options{Template: `<p></p>`})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))

	_, err = r.Define("badge", Options{Template: `<p></p>`})
	assert.NoError(t, err)
}

func TestRegistryCompileErrors(t *testing.T) {
	r := NewRegistry(Config{})

	_, err := r.Define("two-roots", Options{Template: `<p></p><p></p>`})
	require.Error(t, err)
	assert.True(t, errors.IsCompileError(err))
	assert.False(t, r.Has("two-roots"))

	_, err = r.Define("uses-unknown", Options{Template: `<div><not-defined></not-defined></div>`})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnknownComponent, errors.CodeOf(err))
}

func TestRegistryRecursiveDefinition(t *testing.T) {
	r := NewRegistry(Config{})
	f, err := r.Define("tree-node", Options{
		Template: `<div>${label}<tree-node --if="children" --label="label + '.'"></tree-node></div>`,
	})
	require.NoError(t, err)

	c, err := f.New(map[string]any{"label": "root", "children": false})
	require.NoError(t, err)
	assert.Equal(t, `<div>root<!--fibre:if--></div>`, c.Render())
}

func TestRegistryDefineAll(t *testing.T) {
	r := NewRegistry(Config{})

	err := r.DefineAll(map[string]Options{
		"app-shell":  {Template: `<main><app-header --title="title"></app-header><app-footer></app-footer></main>`},
		"app-header": {Template: `<h1>${title}</h1>`},
		"app-footer": {Template: `<footer>${year}</footer>`},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"app-footer", "app-header", "app-shell"}, r.Names())

	f, ok := r.Get("app-shell")
	require.True(t, ok)
	c, err := f.New(map[string]any{"title": "Home"})
	require.NoError(t, err)
	assert.Equal(t, `<main><h1>Home</h1><footer></footer></main>`, c.Render())
}

func TestRegistryDefineAllReportsFailures(t *testing.T) {
	r := NewRegistry(Config{})

	err := r.DefineAll(map[string]Options{
		"page-body":   {Template: `<div><broken-card></broken-card></div>`},
		"broken-card": {Template: `<p></p><p></p>`},
		"plain-card":  {Template: `<p>ok</p>`},
		"div":         {Template: `<div></div>`},
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, stderrors.As(err, &merr))
	require.Len(t, merr.Errors, 3)

	failed := map[string]error{}
	for _, e := range merr.Errors {
		var de *DefineError
		require.True(t, stderrors.As(e, &de))
		failed[de.Name] = de.Err
	}
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(failed["div"]))
	assert.True(t, errors.IsCompileError(failed["broken-card"]))
	assert.Equal(t, errors.ErrCodeUnknownComponent, errors.CodeOf(failed["page-body"]))

	assert.Equal(t, []string{"plain-card"}, r.Names())
}

func TestRegistryCompilerOptions(t *testing.T) {
	loop := scheduler.New()
	r := NewRegistry(Config{
		Compiler:  template.Options{Prefix: "x-", Delimiters: &expression.Delimiters{Open: "{{", Close: "}}"}},
		Scheduler: loop,
	})
	assert.Same(t, loop, r.Scheduler())

	f, err := r.Define("custom-syntax", Options{Template: `<p x-title="t">{{ name }}</p>`})
	require.NoError(t, err)

	c, err := f.New(map[string]any{"t": "T", "name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, `<p title="T">Ann</p>`, c.Render())
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "defined", EventTypeDefined.String())
	assert.Equal(t, "redefined", EventTypeRedefined.String())
	assert.Equal(t, "removed", EventTypeRemoved.String())
	assert.Equal(t, "unknown", EventType(9).String())
}
