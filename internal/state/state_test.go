package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/fibre/internal/errors"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"3", 3},
		{"2.5", 2.5},
		{"true", true},
		{"Ann", "Ann"},
		{"", ""},
		{"null", nil},
		{"[a, b]", []any{"a", "b"}},
		{"{x: 1}", map[string]any{"x": 1}},
		{"'quoted'", "quoted"},
		{"[unclosed", "[unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseValue(tt.raw))
		})
	}
}

func TestParseAssignments(t *testing.T) {
	data, err := ParseAssignments([]string{"title=Home", "user.name=Ann", "user.age=30", "tags=[go, html]"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title": "Home",
		"user":  map[string]any{"name": "Ann", "age": 30},
		"tags":  []any{"go", "html"},
	}, data)

	_, err = ParseAssignments([]string{"novalue"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))

	_, err = ParseAssignments([]string{"a=1", "a.b=2"})
	assert.Error(t, err)

	_, err = ParseAssignments([]string{"a..b=2"})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: Ann\nitems: [1, 2]\n"), 0o600))
	data, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ann", "items": []any{1, 2}}, data)

	jsonPath := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"user": {"name": "Bo"}}`), 0o600))
	data, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": map[string]any{"name": "Bo"}}, data)

	listPath := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(listPath, []byte("- 1\n- 2\n"), 0o600))
	_, err = Load(listPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), listPath)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.CodeOf(err))
}

func TestDecodeEmpty(t *testing.T) {
	data, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestMerge(t *testing.T) {
	dst := map[string]any{"user": map[string]any{"name": "Ann", "age": 30}, "title": "a"}
	out := Merge(dst, map[string]any{"user": map[string]any{"age": 31}, "extra": true})
	assert.Equal(t, map[string]any{
		"user":  map[string]any{"name": "Ann", "age": 31},
		"title": "a",
		"extra": true,
	}, out)

	assert.Equal(t, map[string]any{"k": 1}, Merge(nil, map[string]any{"k": 1}))
}
