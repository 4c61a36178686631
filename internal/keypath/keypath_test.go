package keypath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected KeyPath
	}{
		{"x[1].y[2].z", KeyPath{"x", 1, "y", 2, "z"}},
		{"[1].x[2]", KeyPath{1, "x", 2}},
		{"user", KeyPath{"user"}},
		{"a.b.c", KeyPath{"a", "b", "c"}},
		{`a['b c'].d`, KeyPath{"a", "b c", "d"}},
		{`a["x"]`, KeyPath{"a", "x"}},
		{"", KeyPath{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"a.", ".a", "a..b", "a[", "a[x]", "a[-1]", "a['b"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(KeyPath{"a", 1}, KeyPath{"a", 1}))
	assert.True(t, Equal(KeyPath{"a", "1"}, KeyPath{"a", 1}))
	assert.False(t, Equal(KeyPath{"a", 1}, KeyPath{"a", 2}))
	assert.False(t, Equal(KeyPath{"a"}, KeyPath{"a", "b"}))
	assert.True(t, Equal(nil, KeyPath{}))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 3, Normalize("3"))
	assert.Equal(t, "03", Normalize("03"))
	assert.Equal(t, "name", Normalize("name"))
	assert.Equal(t, 2, Normalize(float64(2)))
	assert.Equal(t, 7, Normalize(int64(7)))
}

func TestString(t *testing.T) {
	assert.Equal(t, "user.items[0].name", KeyPath{"user", "items", 0, "name"}.String())
	assert.Equal(t, `a["b c"]`, KeyPath{"a", "b c"}.String())

	p := MustParse("x[1].y")
	assert.Equal(t, "x[1].y", p.String())
}

func TestAppendDoesNotAlias(t *testing.T) {
	base := make(KeyPath, 1, 4)
	base[0] = "a"
	one := base.Append("b")
	two := base.Append("c")
	assert.Equal(t, KeyPath{"a", "b"}, one)
	assert.Equal(t, KeyPath{"a", "c"}, two)
	assert.Equal(t, "a", base.Head())
}
