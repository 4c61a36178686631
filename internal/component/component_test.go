package component

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/conneroisu/fibre/internal/dom"
	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/logging"
)

func define(t *testing.T, r *Registry, name string, opts Options) *Factory {
	t.Helper()
	f, err := r.Define(name, opts)
	require.NoError(t, err)
	return f
}

func mountComponent(t *testing.T, f *Factory, props map[string]any) *Component {
	t.Helper()
	c, err := f.New(props)
	require.NoError(t, err)
	return c
}

func state(kv map[string]any) func() map[string]any {
	return func() map[string]any {
		out := make(map[string]any, len(kv))
		for k, v := range kv {
			out[k] = v
		}
		return out
	}
}

func TestConditionalBranches(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "if-demo", Options{
		Template: `<section><div --if="x"><b>A</b></div><p --elif="y">B</p><p --else>C</p></section>`,
	})

	c := mountComponent(t, f, map[string]any{"x": false, "y": true})
	assert.Equal(t, `<section><p>B</p></section>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"y": false}))
	assert.Equal(t, `<section><p>C</p></section>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"x": true}))
	assert.Equal(t, `<section><div><b>A</b></div></section>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"x": false, "y": true}))
	assert.Equal(t, `<section><p>B</p></section>`, c.Render())
}

func TestConditionalSharesScope(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "greeting-box", Options{
		Template: `<div><p --if="show">${name}</p></div>`,
		State:    state(map[string]any{"show": true, "name": "Ann"}),
	})

	c := mountComponent(t, f, nil)
	p := c.El().FirstChild
	assert.Equal(t, "Ann", dom.TextContent(p))

	require.NoError(t, c.Merge(map[string]any{"name": "Bo"}))
	assert.Same(t, p, c.El().FirstChild, "branch must not be remounted")
	assert.Equal(t, "Bo", dom.TextContent(p))

	require.NoError(t, c.Merge(map[string]any{"show": false}))
	assert.Equal(t, `<div><!--fibre:if--></div>`, c.Render())
}

func TestLoopPositionalReuse(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "item-list", Options{
		Template: `<ul><li --for="item of list">${item}</li></ul>`,
	})

	c := mountComponent(t, f, map[string]any{"list": []any{1, 2, 3}})
	assert.Equal(t, `<ul><!--fibre:for--><li>1</li><li>2</li><li>3</li></ul>`, c.Render())

	second := c.El().FirstChild.NextSibling.NextSibling

	require.NoError(t, c.Merge(map[string]any{"list": []any{1, 2}}))
	assert.Equal(t, `<ul><!--fibre:for--><li>1</li><li>2</li></ul>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"list": []any{9, 2}}))
	assert.Equal(t, `<ul><!--fibre:for--><li>9</li><li>2</li></ul>`, c.Render())
	assert.Same(t, second, c.El().FirstChild.NextSibling.NextSibling)
}

func TestRootLoop(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "root-list", Options{
		Template: `<li --for="item of list">${item}</li>`,
	})

	c := mountComponent(t, f, map[string]any{"list": []any{1, 2, 3}})
	assert.Equal(t, `<!--fibre:for--><li>1</li><li>2</li><li>3</li>`, c.Render())
	second := c.El().FirstChild.NextSibling.NextSibling

	require.NoError(t, c.Merge(map[string]any{"list": []any{1, 2}}))
	assert.Equal(t, `<!--fibre:for--><li>1</li><li>2</li>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"list": []any{9, 2}}))
	assert.Equal(t, `<!--fibre:for--><li>9</li><li>2</li>`, c.Render())
	assert.Same(t, second, c.El().FirstChild.NextSibling.NextSibling)

	require.NoError(t, c.Merge(map[string]any{"list": []any{}}))
	assert.Equal(t, `<!--fibre:for-->`, c.Render())
}

func TestNestedRootLoop(t *testing.T) {
	r := NewRegistry(Config{})
	define(t, r, "tag-items", Options{Template: `<li --for="tag of tags">${tag}</li>`})
	f := define(t, r, "tag-box", Options{Template: `<ul><tag-items --tags="all"></tag-items></ul>`})

	c := mountComponent(t, f, map[string]any{"all": []any{"a", "b"}})
	assert.Equal(t, `<ul><!--fibre:for--><li>a</li><li>b</li></ul>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"all": []any{"a", "b", "c"}}))
	assert.Equal(t, `<ul><!--fibre:for--><li>a</li><li>b</li><li>c</li></ul>`, c.Render())
}

func TestOperatorsInTemplates(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "cart-total", Options{
		Template: `<div><p>${'Total: ' + n}</p><em --if="!items.length">empty</em><b>${flags | 4}</b><i>${name || 'anon'}</i></div>`,
		State:    state(map[string]any{"n": 3, "items": []any{}, "flags": 1, "name": ""}),
	})

	c := mountComponent(t, f, nil)
	assert.Equal(t, `<div><p>Total: 3</p><em>empty</em><b>5</b><i>anon</i></div>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"items": []any{"x"}, "name": "Ann"}))
	assert.Equal(t, `<div><p>Total: 3</p><!--fibre:if--><b>5</b><i>Ann</i></div>`, c.Render())
}

func TestLoopOverMap(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "score-list", Options{
		Template: `<dl><dt --for="[k, v] of scores">${k}=${v}</dt></dl>`,
	})

	c := mountComponent(t, f, map[string]any{"scores": map[string]any{"b": 2, "a": 1}})
	assert.Equal(t, `<dl><!--fibre:for--><dt>a=1</dt><dt>b=2</dt></dl>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"scores": map[string]any{"a": 5}}))
	assert.Equal(t, `<dl><!--fibre:for--><dt>a=5</dt><dt>b=2</dt></dl>`, c.Render())
}

func TestLoopItemsReadHostState(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "tag-list", Options{
		Template: `<ul><li --for="tag of tags">${prefix}${tag}</li></ul>`,
		State:    state(map[string]any{"prefix": "#", "tags": []any{"go", "html"}}),
	})

	c := mountComponent(t, f, nil)
	assert.Equal(t, `<ul><!--fibre:for--><li>#go</li><li>#html</li></ul>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"prefix": "@"}))
	assert.Equal(t, `<ul><!--fibre:for--><li>@go</li><li>@html</li></ul>`, c.Render())
}

func TestLoopElse(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "maybe-list", Options{
		Template: `<div><i --for="x of xs">${x}</i><p --else>empty</p></div>`,
	})

	c := mountComponent(t, f, map[string]any{"xs": []any{}})
	assert.Equal(t, `<div><!--fibre:for--><p>empty</p></div>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"xs": []any{1}}))
	assert.Equal(t, `<div><!--fibre:for--><i>1</i><!--fibre:if--></div>`, c.Render())
}

func TestSwitchMemoisesBranch(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "switch-demo", Options{
		Template: `<span --switch="n"><b --case="1">one</b><b --default>other</b></span>`,
	})

	c := mountComponent(t, f, map[string]any{"n": 1})
	assert.Equal(t, `<span><b>one</b></span>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"n": 2}))
	assert.Equal(t, `<span><b>other</b></span>`, c.Render())
	other := c.El().FirstChild

	require.NoError(t, c.Merge(map[string]any{"n": 3}))
	assert.Same(t, other, c.El().FirstChild)

	require.NoError(t, c.Merge(map[string]any{"n": 1}))
	assert.Equal(t, `<span><b>one</b></span>`, c.Render())
}

func TestSetters(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "user-card", Options{
		Template: `<div class="box" --class="{active: on}" --data-user-id="id" --title="title">${greeting}, ${name}!</div>`,
		State: state(map[string]any{
			"on": true, "id": 7, "title": "T", "greeting": "Hi", "name": "Ann",
		}),
	})

	c := mountComponent(t, f, nil)
	assert.Equal(t, `<div class="box active" data-user-id="7" title="T">Hi, Ann!</div>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"on": false, "name": "Bo", "id": nil}))
	assert.Equal(t, `<div class="box" title="T">Hi, Bo!</div>`, c.Render())
}

func TestEvaluationErrorSkipsEffect(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(Config{Logger: logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelInfo,
		Format: "text",
		Output: &buf,
	})})
	f := define(t, r, "bad-math", Options{
		Template: `<p --title="n * 2">x</p>`,
	})

	c := mountComponent(t, f, map[string]any{"n": "abc"})
	_, ok := dom.Attr(c.El(), "title")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "binding not updated")

	require.NoError(t, c.Merge(map[string]any{"n": 3}))
	assert.Equal(t, `<p title="6">x</p>`, c.Render())
}

func TestMergeStateCoalesces(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "click-counter", Options{
		Template: `<div><button --on-click="this.merge({count: count + 1})">${count}</button></div>`,
		State:    state(map[string]any{"count": 0}),
	})

	c := mountComponent(t, f, nil)
	btn := c.El().FirstChild

	c.Dispatch(btn, "click", nil)
	c.Dispatch(btn, "click", nil)
	assert.Equal(t, 1, r.Scheduler().Pending())
	assert.Equal(t, "0", dom.TextContent(btn), "flush is deferred")

	r.Scheduler().Drain()
	assert.Equal(t, "2", dom.TextContent(btn))
	assert.Equal(t, 0, r.Scheduler().Pending())
}

func TestListenerEvent(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "echo-input", Options{
		Template: `<div><input --on-input="this.merge({text: event.target.value, kind: event.type})"><p>${kind}:${text}</p></div>`,
		State:    state(map[string]any{"text": "", "kind": ""}),
	})

	c := mountComponent(t, f, nil)
	input := c.El().FirstChild
	dom.SetProperty(input, "value", "hey")

	assert.True(t, c.Dispatch(input, "input", nil))
	r.Scheduler().Drain()
	assert.Equal(t, "input:hey", dom.TextContent(input.NextSibling))
}

func TestListenerPreventDefault(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "guarded-link", Options{
		Template: `<div><a href="/x" --on-click="event.preventDefault()">go</a></div>`,
	})

	c := mountComponent(t, f, nil)
	assert.False(t, c.Dispatch(c.El().FirstChild, "click", nil))
}

func TestMethodsAndRefs(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "name-form", Options{
		Template: `<form><input --ref="field" value="x"><button --on-click="this.submit(event.type)">Go</button><p>${submitted}</p></form>`,
		State:    state(map[string]any{"submitted": ""}),
		Methods: map[string]Method{
			"submit": func(c *Component, args ...any) any {
				v := dom.Property(c.Refs()["field"], "value")
				require.NoError(t, c.MergeState(map[string]any{"submitted": fmt.Sprint(v, ":", args[0])}))
				return nil
			},
		},
	})

	c := mountComponent(t, f, nil)
	field := c.Refs()["field"]
	require.NotNil(t, field)
	assert.Equal(t, "input", field.Data)

	btn := field.NextSibling
	c.Dispatch(btn, "click", nil)
	r.Scheduler().Drain()
	assert.Equal(t, "x:click", dom.TextContent(btn.NextSibling))

	c.Destroy()
	assert.Empty(t, c.Refs())
	assert.Equal(t, 0, dom.ListenerCount(btn))
}

func TestRefsReachOutermostComponent(t *testing.T) {
	r := NewRegistry(Config{})
	define(t, r, "inner-box", Options{Template: `<div><span --ref="inner">i</span></div>`})
	f := define(t, r, "outer-box", Options{Template: `<section><inner-box></inner-box><ul><li --for="x of xs" --ref="last">${x}</li></ul></section>`})

	c := mountComponent(t, f, map[string]any{"xs": []any{1, 2}})
	refs := c.Refs()
	require.Contains(t, refs, "inner")
	assert.Equal(t, "span", refs["inner"].Data)
	require.Contains(t, refs, "last")
	assert.Equal(t, "2", dom.TextContent(refs["last"]))
}

func TestNestedComponentProps(t *testing.T) {
	r := NewRegistry(Config{})
	define(t, r, "user-badge", Options{
		Template: `<span class="badge">${label}: ${count} (${clicks})</span>`,
		State:    state(map[string]any{"clicks": 0}),
	})
	f := define(t, r, "score-board", Options{
		Template: `<div><user-badge label="Score" --count="score"></user-badge></div>`,
		State:    state(map[string]any{"score": 5}),
	})

	c := mountComponent(t, f, nil)
	assert.Equal(t, `<div><span class="badge">Score: 5 (0)</span></div>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"score": 6}))
	assert.Equal(t, `<div><span class="badge">Score: 6 (0)</span></div>`, c.Render())
}

func TestNestedComponentLayering(t *testing.T) {
	r := NewRegistry(Config{})
	define(t, r, "theme-label", Options{Template: `<em>${theme}/${text}</em>`})
	f := define(t, r, "themed-page", Options{
		Template: `<div><theme-label --text="title"></theme-label></div>`,
		State:    state(map[string]any{"theme": "dark", "title": "Home"}),
	})

	c := mountComponent(t, f, nil)
	assert.Equal(t, `<div><em>dark/Home</em></div>`, c.Render())

	require.NoError(t, c.Merge(map[string]any{"theme": "light"}))
	assert.Equal(t, `<div><em>light/Home</em></div>`, c.Render(), "unowned keys fall through to the host")

	child := c.directives[0].(*nested).child
	err := child.Merge(map[string]any{"theme": "blue"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUndeclaredKey, errors.CodeOf(err))
}

func TestSlots(t *testing.T) {
	r := NewRegistry(Config{})
	define(t, r, "fancy-card", Options{
		Template: `<article><header><slot name="title"><em>untitled</em></slot></header><slot></slot></article>`,
	})

	t.Run("fillers use the defining scope", func(t *testing.T) {
		f := define(t, r, "card-page", Options{
			Template: `<main><fancy-card><h1 --slot="title">${heading}</h1><p --slot>${body}</p></fancy-card></main>`,
			State:    state(map[string]any{"heading": "Hello", "body": "World"}),
		})
		c := mountComponent(t, f, nil)
		assert.Equal(t, `<main><article><header><h1>Hello</h1></header><p>World</p></article></main>`, c.Render())

		require.NoError(t, c.Merge(map[string]any{"heading": "Bye"}))
		assert.Equal(t, `<main><article><header><h1>Bye</h1></header><p>World</p></article></main>`, c.Render())
	})

	t.Run("default content", func(t *testing.T) {
		f := define(t, r, "plain-page", Options{
			Template: `<main><fancy-card><p --slot>${body}</p></fancy-card></main>`,
			State:    state(map[string]any{"body": "World"}),
		})
		c := mountComponent(t, f, nil)
		assert.Equal(t, `<main><article><header><em>untitled</em></header><p>World</p></article></main>`, c.Render())
	})

	t.Run("missing content", func(t *testing.T) {
		f := define(t, r, "empty-page", Options{
			Template: `<main><fancy-card><h1 --slot="title">x</h1></fancy-card></main>`,
		})
		_, err := f.New(nil)
		require.Error(t, err)
		assert.True(t, errors.IsAssertion(err))
		assert.Equal(t, errors.ErrCodeMissingSlot, errors.CodeOf(err))
	})
}

func TestDestroyStopsUpdates(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "frozen-counter", Options{
		Template: `<div><button --on-click="this.update()">${count}</button><p --if="count">${count}</p></div>`,
		State:    state(map[string]any{"count": 1}),
	})

	c := mountComponent(t, f, nil)
	btn := c.El().FirstChild
	before := c.Render()
	require.Equal(t, 1, dom.ListenerCount(btn))

	c.Destroy()
	assert.Equal(t, 0, dom.ListenerCount(btn))

	require.NoError(t, c.Merge(map[string]any{"count": 2}))
	assert.Equal(t, before, c.Render())
}

func TestComponentRootFollowsReplacement(t *testing.T) {
	r := NewRegistry(Config{})
	define(t, r, "leaf-node", Options{Template: `<b>${v}</b>`})
	f := define(t, r, "wrapper-node", Options{Template: `<leaf-node --v="value"></leaf-node>`})

	c := mountComponent(t, f, map[string]any{"value": "x"})
	assert.Equal(t, html.ElementNode, c.El().Type)
	assert.Equal(t, `<b>x</b>`, c.Render())
}

func TestGet(t *testing.T) {
	r := NewRegistry(Config{})
	f := define(t, r, "data-holder", Options{
		Template: `<div>${user.name}</div>`,
		State:    state(map[string]any{"user": map[string]any{"name": "Ann", "tags": []any{"a", "b"}}}),
	})

	c := mountComponent(t, f, nil)
	v, ok := c.Get("user.tags[1]")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = c.Get("user.missing")
	assert.False(t, ok)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, "data-holder", c.Name())
	assert.Nil(t, c.Host())
}
