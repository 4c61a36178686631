// Package keypath models addresses into nested plain data.
//
// A KeyPath is an ordered list of segments; every segment is either a
// string (an object key) or an int (an array index). Paths are produced by
// the expression scanner and consumed by the store's subscription trie.
package keypath

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyPath is an ordered sequence of string or int segments.
type KeyPath []any

// Parse splits dotted and bracketed accessor syntax into a KeyPath.
//
//	Parse("x[1].y[2].z") => {"x", 1, "y", 2, "z"}
//	Parse("[1].x[2]")    => {1, "x", 2}
func Parse(s string) (KeyPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return KeyPath{}, nil
	}

	var path KeyPath
	i := 0
	expectKey := true
	for i < len(s) {
		switch c := s[i]; {
		case c == '.':
			if expectKey {
				return nil, fmt.Errorf("keypath %q: unexpected '.' at %d", s, i)
			}
			i++
			if i >= len(s) {
				return nil, fmt.Errorf("keypath %q: missing key after '.'", s)
			}
			expectKey = true
		case c == '[':
			seg, n, err := parseBracket(s[i:])
			if err != nil {
				return nil, fmt.Errorf("keypath %q: %w", s, err)
			}
			path = append(path, seg)
			i += n
			expectKey = false
		default:
			if !expectKey {
				return nil, fmt.Errorf("keypath %q: unexpected %q at %d", s, c, i)
			}
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			path = append(path, s[i:j])
			i = j
			expectKey = false
		}
	}
	if expectKey && len(path) > 0 {
		return nil, fmt.Errorf("keypath %q: trailing '.'", s)
	}
	return path, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and package-level literals.
func MustParse(s string) KeyPath {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseBracket(s string) (any, int, error) {
	end := -1
	if len(s) > 1 && (s[1] == '\'' || s[1] == '"') {
		quote := s[1]
		for k := 2; k < len(s); k++ {
			if s[k] == '\\' {
				k++
				continue
			}
			if s[k] == quote {
				if k+1 >= len(s) || s[k+1] != ']' {
					return nil, 0, fmt.Errorf("expected ']' after quoted key")
				}
				key, err := strconv.Unquote(`"` + strings.ReplaceAll(s[2:k], `"`, `\"`) + `"`)
				if err != nil {
					key = s[2:k]
				}
				return key, k + 2, nil
			}
		}
		return nil, 0, fmt.Errorf("unterminated quoted key")
	}
	end = strings.IndexByte(s, ']')
	if end < 0 {
		return nil, 0, fmt.Errorf("unterminated '['")
	}
	inner := strings.TrimSpace(s[1:end])
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return nil, 0, fmt.Errorf("bracket segment %q is not an index", inner)
	}
	return n, end + 1, nil
}

// Normalize returns the canonical trie form of a segment: strings that spell
// a non-negative integer become ints so obj["0"] and arr[0] share a node.
func Normalize(seg any) any {
	switch v := seg.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) && v >= 0 {
			return int(v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		if isIndex(v) {
			n, err := strconv.Atoi(v)
			if err == nil {
				return n
			}
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

func isIndex(s string) bool {
	if s == "" || len(s) > 9 {
		return false
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Key returns the segment as an object key.
func Key(seg any) string {
	switch v := seg.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}

// Equal reports whether a and b have element-wise equal segments.
func Equal(a, b KeyPath) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if Normalize(a[i]) != Normalize(b[i]) {
			return false
		}
	}
	return true
}

// Head returns the first segment as a key, or "" for the empty path.
func (p KeyPath) Head() string {
	if len(p) == 0 {
		return ""
	}
	return Key(p[0])
}

// Append returns a new path with segs appended; p is not modified.
func (p KeyPath) Append(segs ...any) KeyPath {
	out := make(KeyPath, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// String renders p in accessor syntax, e.g. user.items[0].name.
func (p KeyPath) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch v := seg.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		default:
			k := Key(v)
			if isIdentifier(k) {
				if i > 0 {
					b.WriteByte('.')
				}
				b.WriteString(k)
			} else {
				fmt.Fprintf(&b, "[%q]", k)
			}
		}
	}
	return b.String()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
