package expression

import (
	"strconv"
	"strings"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/keypath"
)

// reserved words are never the root of a data path.
var reserved = map[string]string{
	"false":      "false",
	"true":       "true",
	"null":       "nil",
	"in":         "in",
	"instanceof": "instanceof",
	"new":        "new",
	"typeof":     "typeof",
	"void":       "void",
}

// rejected operators, longest first. Each maps to the error code raised
// when the scanner meets it.
var rejected = []struct {
	op   string
	code string
	msg  string
}{
	{">>>=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"<<=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{">>=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"**=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"&&=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"||=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"??=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"...", errors.ErrCodeUnsupported, "spread syntax is not supported"},
	{"//", errors.ErrCodeComment, "comments are not allowed"},
	{"/*", errors.ErrCodeComment, "comments are not allowed"},
	{"=>", errors.ErrCodeArrowFunction, "arrow functions are not allowed"},
	{"+=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"-=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"*=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"/=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"%=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"&=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"|=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"^=", errors.ErrCodeAssignment, "assignment is not allowed"},
	{"++", errors.ErrCodeAssignment, "increment is not allowed"},
	{"--", errors.ErrCodeAssignment, "decrement is not allowed"},
	{"/", errors.ErrCodeDivision, "'/' is ambiguous with a regular expression"},
	{";", errors.ErrCodeStatement, "statements are not allowed"},
	{"`", errors.ErrCodeUnsupported, "template literals are not supported"},
}

// passthrough operators, longest first, with their rewritten spelling.
var passthrough = []struct{ op, out string }{
	{">>>", ">>>"},
	{"===", "=="},
	{"!==", "!="},
	{"==", "=="},
	{"!=", "!="},
	{"<=", "<="},
	{">=", ">="},
	{"&&", "&&"},
	{"||", "||"},
	{"??", "??"},
	{"**", "**"},
	{"<<", "<<"},
	{">>", ">>"},
}

// scanner holds the state of one left-to-right pass. A new scanner is
// created for every call so no state survives between compilations.
type scanner struct {
	src   string
	start int
	pos   int
	close string

	out      strings.Builder
	stack    []byte
	maybeKey bool
	afterDot bool

	paths []keypath.KeyPath
	index map[string]int
}

func newScanner(src string, start int, closing string) *scanner {
	return &scanner{
		src:   src,
		start: start,
		pos:   start,
		close: closing,
		index: make(map[string]int),
	}
}

func (s *scanner) fail(code, msg string) error {
	return errors.NewExpressionError(code, msg).WithConstruct(s.src, s.pos)
}

// scan runs the pass and returns the offset just past the expression,
// including the closing delimiter when one is expected.
func (s *scanner) scan() (int, error) {
	for {
		if s.pos >= len(s.src) {
			if s.close != "" {
				return 0, s.fail(errors.ErrCodeUnterminatedExpr, "missing closing delimiter "+strconv.Quote(s.close))
			}
			break
		}
		if len(s.stack) == 0 && s.close != "" && strings.HasPrefix(s.src[s.pos:], s.close) {
			s.pos += len(s.close)
			break
		}

		c := s.src[s.pos]
		var err error
		switch {
		case isSpace(c):
			s.out.WriteByte(c)
			s.pos++
			continue
		case isDigit(c) || (c == '.' && s.pos+1 < len(s.src) && isDigit(s.src[s.pos+1])):
			s.scanNumber()
		case c == '\'' || c == '"':
			err = s.scanString()
		case isIdentStart(c):
			err = s.scanIdentifier()
		default:
			err = s.scanPunct()
		}
		if err != nil {
			return 0, err
		}
	}

	if len(s.stack) > 0 {
		return 0, s.fail(errors.ErrCodeUnbalanced, "unclosed "+strconv.Quote(string(s.stack[len(s.stack)-1])))
	}
	return s.pos, nil
}

func (s *scanner) scanNumber() {
	begin := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isIdentPart(c) || c == '.' {
			s.pos++
			continue
		}
		if (c == '+' || c == '-') && s.pos > begin {
			prev := s.src[s.pos-1]
			hex := strings.HasPrefix(strings.ToLower(s.src[begin:s.pos]), "0x")
			if (prev == 'e' || prev == 'E') && !hex {
				s.pos++
				continue
			}
		}
		break
	}
	s.out.WriteString(s.src[begin:s.pos])
	s.maybeKey = false
	s.afterDot = false
}

func (s *scanner) scanString() error {
	end, ok := stringEnd(s.src, s.pos)
	if !ok {
		return s.fail(errors.ErrCodeUnterminatedString, "unterminated string literal")
	}
	s.out.WriteString(s.src[s.pos:end])
	s.pos = end
	s.maybeKey = false
	s.afterDot = false
	return nil
}

// stringEnd returns the offset just past the string literal opening at i.
func stringEnd(src string, i int) (int, bool) {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1, true
		case '\n':
			return 0, false
		}
	}
	return 0, false
}

func (s *scanner) scanIdentifier() error {
	name := s.readIdent()

	if s.afterDot {
		s.out.WriteString(name)
		s.afterDot = false
		s.maybeKey = false
		return nil
	}

	if spelled, ok := reserved[name]; ok {
		s.out.WriteString(spelled)
		s.maybeKey = false
		return nil
	}

	if s.maybeKey {
		s.maybeKey = false
		switch s.peek() {
		case ':':
			s.out.WriteString(name)
			return nil
		case ',', '}':
			s.out.WriteString(name + ": " + s.intern(keypath.KeyPath{name}))
			return nil
		}
	}

	path := keypath.KeyPath{name}
	for {
		save := s.pos
		s.skipSpace()
		if s.pos >= len(s.src) {
			s.pos = save
			break
		}
		c := s.src[s.pos]
		if c == '.' && !strings.HasPrefix(s.src[s.pos:], "...") {
			s.pos++
			s.skipSpace()
			if s.pos >= len(s.src) || !isIdentStart(s.src[s.pos]) {
				return s.fail(errors.ErrCodeMissingIdentifier, "missing identifier after '.'")
			}
			path = append(path, s.readIdent())
			continue
		}
		if c == '[' {
			if seg, next, ok := s.literalIndex(s.pos); ok {
				path = append(path, seg)
				s.pos = next
				continue
			}
		}
		s.pos = save
		break
	}

	var dropped any
	if len(path) > 1 && s.peek() == '(' {
		dropped = path[len(path)-1]
		path = path[:len(path)-1]
	}

	s.out.WriteString(s.intern(path))
	switch seg := dropped.(type) {
	case string:
		s.out.WriteString("." + seg)
	case int:
		s.out.WriteString("[" + strconv.Itoa(seg) + "]")
	}
	return nil
}

// literalIndex parses a bracket accessor holding only a number or string
// literal, returning the segment and the offset past ']'.
func (s *scanner) literalIndex(i int) (any, int, bool) {
	j := skipSpaceFrom(s.src, i+1)
	if j >= len(s.src) {
		return nil, 0, false
	}
	var seg any
	switch c := s.src[j]; {
	case c == '\'' || c == '"':
		end, ok := stringEnd(s.src, j)
		if !ok {
			return nil, 0, false
		}
		lit := s.src[j:end]
		if c == '\'' {
			lit = `"` + strings.ReplaceAll(lit[1:len(lit)-1], `"`, `\"`) + `"`
		}
		str, err := strconv.Unquote(lit)
		if err != nil {
			return nil, 0, false
		}
		seg = keypath.Normalize(str)
		j = end
	case isDigit(c):
		k := j
		for k < len(s.src) && isDigit(s.src[k]) {
			k++
		}
		n, err := strconv.Atoi(s.src[j:k])
		if err != nil {
			return nil, 0, false
		}
		seg = n
		j = k
	default:
		return nil, 0, false
	}
	j = skipSpaceFrom(s.src, j)
	if j >= len(s.src) || s.src[j] != ']' {
		return nil, 0, false
	}
	return seg, j + 1, true
}

func (s *scanner) scanPunct() error {
	rest := s.src[s.pos:]

	for _, r := range rejected {
		if strings.HasPrefix(rest, r.op) {
			return s.fail(r.code, r.msg)
		}
	}
	for _, p := range passthrough {
		if strings.HasPrefix(rest, p.op) {
			s.out.WriteString(p.out)
			s.pos += len(p.op)
			s.maybeKey = false
			s.afterDot = false
			return nil
		}
	}

	c := rest[0]
	if c == '=' {
		return s.fail(errors.ErrCodeAssignment, "assignment is not allowed")
	}
	if strings.HasPrefix(rest, "?.") {
		s.out.WriteString("?.")
		s.pos += 2
		s.afterDot = true
		s.maybeKey = false
		return nil
	}

	s.out.WriteByte(c)
	s.pos++
	s.afterDot = false
	s.maybeKey = false

	switch c {
	case '.':
		s.afterDot = true
	case '{':
		s.stack = append(s.stack, c)
		s.maybeKey = true
	case '(', '[':
		s.stack = append(s.stack, c)
	case ')', ']', '}':
		open := map[byte]byte{')': '(', ']': '[', '}': '{'}[c]
		if len(s.stack) == 0 || s.stack[len(s.stack)-1] != open {
			s.pos--
			return s.fail(errors.ErrCodeUnbalanced, "unexpected "+strconv.Quote(string(c)))
		}
		s.stack = s.stack[:len(s.stack)-1]
	case ',':
		s.maybeKey = len(s.stack) > 0 && s.stack[len(s.stack)-1] == '{'
	}
	return nil
}

// intern registers path in first-occurrence order and returns its
// positional identifier.
func (s *scanner) intern(path keypath.KeyPath) string {
	norm := make(keypath.KeyPath, len(path))
	for i, seg := range path {
		norm[i] = keypath.Normalize(seg)
	}
	key := norm.String()
	if i, ok := s.index[key]; ok {
		return identifier(i)
	}
	i := len(s.paths)
	s.index[key] = i
	s.paths = append(s.paths, norm)
	return identifier(i)
}

// identifier returns the positional name for the i-th path: a..z, then
// a1..z1, a2..z2 and so on.
func identifier(i int) string {
	name := string(rune('a' + i%26))
	if i >= 26 {
		name += strconv.Itoa(i / 26)
	}
	return name
}

func (s *scanner) readIdent() string {
	begin := s.pos
	for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
		s.pos++
	}
	return s.src[begin:s.pos]
}

func (s *scanner) skipSpace() {
	s.pos = skipSpaceFrom(s.src, s.pos)
}

// peek returns the next non-space byte without consuming it, or 0.
func (s *scanner) peek() byte {
	j := skipSpaceFrom(s.src, s.pos)
	if j >= len(s.src) {
		return 0
	}
	return s.src[j]
}

func skipSpaceFrom(src string, i int) int {
	for i < len(src) && isSpace(src[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
