package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCamelAndKebabCase(t *testing.T) {
	assert.Equal(t, "textContent", CamelCase("text-content"))
	assert.Equal(t, "value", CamelCase("value"))
	assert.Equal(t, "ariaLabelledBy", CamelCase("aria-labelled-by"))
	assert.Equal(t, "font-size", KebabCase("fontSize"))
	assert.Equal(t, "user-id", KebabCase("userId"))
}

func TestPropertyName(t *testing.T) {
	input := firstElement(MustParse(`<input>`))
	div := firstElement(MustParse(`<div></div>`))

	name, ok := PropertyName(input, "value")
	assert.True(t, ok)
	assert.Equal(t, "value", name)

	name, ok = PropertyName(div, "innerhtml")
	assert.True(t, ok)
	assert.Equal(t, "innerHTML", name)

	assert.False(t, HasProperty(div, "value"))
	assert.False(t, HasProperty(div, "ariaLabel"))
	assert.True(t, HasProperty(input, "checked"))
}

func TestSetProperty(t *testing.T) {
	input := firstElement(MustParse(`<input>`))

	SetProperty(input, "checked", true)
	assert.Equal(t, `<input checked=""/>`, Stringify(input))
	assert.Equal(t, true, Property(input, "checked"))

	SetProperty(input, "checked", false)
	assert.Equal(t, false, Property(input, "checked"))

	SetProperty(input, "value", 42)
	assert.Equal(t, "42", Property(input, "value"))

	p := firstElement(MustParse(`<p>old</p>`))
	SetProperty(p, "textContent", "<b>new</b>")
	assert.Equal(t, `<p>&lt;b&gt;new&lt;/b&gt;</p>`, Stringify(p))

	SetProperty(p, "innerHTML", "<b>new</b>")
	assert.Equal(t, `<p><b>new</b></p>`, Stringify(p))
	assert.Equal(t, "<b>new</b>", Property(p, "innerHTML"))
}

func TestSetAttributeAndDataset(t *testing.T) {
	el := firstElement(MustParse(`<div></div>`))

	SetAttribute(el, "aria-label", "Close")
	SetDataset(el, "userId", 7)
	assert.Equal(t, `<div aria-label="Close" data-user-id="7"></div>`, Stringify(el))

	SetAttribute(el, "aria-label", nil)
	SetDataset(el, "userId", false)
	assert.Equal(t, `<div></div>`, Stringify(el))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "btn active", ClassString("btn", map[string]any{"active": true, "off": false}))
	assert.Equal(t, "btn big", ClassString("btn", "big"))
	assert.Equal(t, "a b", ClassString("", []any{"a", "", "b"}))
	assert.Equal(t, "btn", ClassString("btn btn", nil))
}

func TestStyleString(t *testing.T) {
	assert.Equal(t, "color: red; font-size: 12px",
		StyleString("color: red;", map[string]any{"fontSize": "12px", "margin": nil}))
	assert.Equal(t, "display: none", StyleString("", "display: none;"))
}
