package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDescribe(t *testing.T) {
	tmpl := mustParse(t,
		`<div><p --if="user.admin">${user.name}</p><p --else>guest</p><my-card --title="t"></my-card></div>`,
		Options{Components: registry{"my-card": true}})

	d := Describe(tmpl)
	assert.Equal(t, `<div><!--fibre:if--><my-card></my-card></div>`, d.HTML)
	require.Len(t, d.Directives, 2)

	cond := d.Directives[0]
	assert.Equal(t, "if", cond.Kind)
	assert.Equal(t, "0", cond.Path)
	require.Len(t, cond.Branches, 2)
	assert.Equal(t, "", cond.Branches[1].Condition)
	require.Len(t, cond.Branches[0].Template.Directives, 1)
	assert.Equal(t, []string{"user.name"}, cond.Branches[0].Template.Directives[0].Deps)

	card := d.Directives[1]
	assert.Equal(t, "component", card.Kind)
	assert.Equal(t, "my-card", card.Name)
	require.Len(t, card.Props, 1)
	assert.Equal(t, "title", card.Props[0].Name)
	assert.Equal(t, []string{"t"}, card.Props[0].Deps)
}

func TestDescribeSerialises(t *testing.T) {
	tmpl := mustParse(t, `<ul><li --for="[i, x] of xs">${x}</li></ul>`, Options{})
	d := Describe(tmpl)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"for"`)
	assert.Contains(t, string(raw), `"name":"[i, x]"`)

	out, err := yaml.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: for")
}

func TestDescribeNil(t *testing.T) {
	assert.Nil(t, Describe(nil))
}
