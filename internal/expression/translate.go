package expression

import (
	"fmt"
	"strings"
)

// The scanner's output keeps JavaScript operator precedence, which expr
// does not share: bitwise operators sit between equality and &&, shifts
// between comparison and +, and ?? binds loosest. translate parses the
// rewritten source with JavaScript precedence and prints it fully
// parenthesized, spelling operators expr lacks as calls.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// punctuators, longest first.
var punctuators = []string{
	">>>", "===", "!==",
	"==", "!=", "<=", ">=", "&&", "||", "??", "**", "<<", ">>", "?.",
	"+", "-", "*", "/", "%", "<", ">", "!", "~", "&", "|", "^", "?", ":", ",", ".",
	"(", ")", "[", "]", "{", "}",
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case isSpace(c):
			i++
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := i
			for j < len(src) {
				d := src[j]
				if isIdentPart(d) || d == '.' {
					j++
					continue
				}
				if (d == '+' || d == '-') && (src[j-1] == 'e' || src[j-1] == 'E') &&
					!strings.HasPrefix(strings.ToLower(src[i:j]), "0x") {
					j++
					continue
				}
				break
			}
			text := src[i:j]
			if text[0] == '.' {
				text = "0" + text
			}
			toks = append(toks, token{kind: tokNumber, text: text, pos: i})
			i = j
		case c == '\'' || c == '"':
			end, ok := stringEnd(src, i)
			if !ok {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			toks = append(toks, token{kind: tokString, text: src[i:end], pos: i})
			i = end
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
		default:
			op := ""
			for _, p := range punctuators {
				if strings.HasPrefix(src[i:], p) {
					op = p
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected %q at offset %d", c, i)
			}
			// a?.5:1 is a conditional, not optional chaining.
			if op == "?." && i+2 < len(src) && isDigit(src[i+2]) {
				op = "?"
			}
			toks = append(toks, token{kind: tokPunct, text: op, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

type binaryOp struct {
	prec  int
	right bool
}

var binaryOps = map[string]binaryOp{
	"??":         {prec: 1},
	"||":         {prec: 2},
	"&&":         {prec: 3},
	"|":          {prec: 4},
	"^":          {prec: 5},
	"&":          {prec: 6},
	"==":         {prec: 7},
	"!=":         {prec: 7},
	"===":        {prec: 7},
	"!==":        {prec: 7},
	"<":          {prec: 8},
	">":          {prec: 8},
	"<=":         {prec: 8},
	">=":         {prec: 8},
	"in":         {prec: 8},
	"instanceof": {prec: 8},
	"<<":         {prec: 9},
	">>":         {prec: 9},
	">>>":        {prec: 9},
	"+":          {prec: 10},
	"-":          {prec: 10},
	"*":          {prec: 11},
	"/":          {prec: 11},
	"%":          {prec: 11},
	"**":         {prec: 12, right: true},
}

type translator struct {
	toks []token
	pos  int
}

// translate returns source as expr program text.
func translate(source string) (string, error) {
	toks, err := lex(source)
	if err != nil {
		return "", err
	}
	t := &translator{toks: toks}
	out, err := t.expression()
	if err != nil {
		return "", err
	}
	if tok := t.peek(); tok.kind != tokEOF {
		return "", t.unexpected(tok)
	}
	return out, nil
}

func (t *translator) peek() token {
	return t.toks[t.pos]
}

func (t *translator) next() token {
	tok := t.toks[t.pos]
	if tok.kind != tokEOF {
		t.pos++
	}
	return tok
}

// is reports whether the next token is the punctuator or keyword text.
func (t *translator) is(text string) bool {
	tok := t.peek()
	return (tok.kind == tokPunct || tok.kind == tokIdent) && tok.text == text
}

func (t *translator) expect(text string) error {
	if !t.is(text) {
		return t.unexpected(t.peek())
	}
	t.next()
	return nil
}

func (t *translator) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return fmt.Errorf("unexpected end of expression")
	}
	return fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
}

func (t *translator) expression() (string, error) {
	cond, err := t.binary(1)
	if err != nil || !t.is("?") {
		return cond, err
	}
	t.next()
	yes, err := t.expression()
	if err != nil {
		return "", err
	}
	if err := t.expect(":"); err != nil {
		return "", err
	}
	no, err := t.expression()
	if err != nil {
		return "", err
	}
	return "(" + cond + " ? " + yes + " : " + no + ")", nil
}

func (t *translator) binary(min int) (string, error) {
	left, err := t.unary()
	if err != nil {
		return "", err
	}
	for {
		tok := t.peek()
		if tok.kind != tokPunct && tok.kind != tokIdent {
			return left, nil
		}
		op, ok := binaryOps[tok.text]
		if !ok || op.prec < min {
			return left, nil
		}
		t.next()
		next := op.prec + 1
		if op.right {
			next = op.prec
		}
		right, err := t.binary(next)
		if err != nil {
			return "", err
		}
		left = emitBinary(tok.text, left, right)
	}
}

func emitBinary(op, left, right string) string {
	switch op {
	case "&":
		return "bitand(jsInt32(" + left + "), jsInt32(" + right + "))"
	case "|":
		return "bitor(jsInt32(" + left + "), jsInt32(" + right + "))"
	case "^":
		return "bitxor(jsInt32(" + left + "), jsInt32(" + right + "))"
	case "<<":
		return "jsInt32(bitshl(jsInt32(" + left + "), jsShift(" + right + ")))"
	case ">>":
		return "bitshr(jsInt32(" + left + "), jsShift(" + right + "))"
	case ">>>":
		return "bitushr(jsUint32(" + left + "), jsShift(" + right + "))"
	case "in":
		return "jsIn(" + left + ", " + right + ")"
	case "instanceof":
		return "jsInstanceof(" + left + ", " + right + ")"
	case "===":
		op = "=="
	case "!==":
		op = "!="
	}
	return "(" + left + " " + op + " " + right + ")"
}

func (t *translator) unary() (string, error) {
	switch {
	case t.is("!"), t.is("-"), t.is("+"):
		op := t.next().text
		x, err := t.unary()
		if err != nil {
			return "", err
		}
		return "(" + op + x + ")", nil
	case t.is("~"):
		t.next()
		x, err := t.unary()
		if err != nil {
			return "", err
		}
		return "bitnot(jsInt32(" + x + "))", nil
	case t.is("typeof"):
		t.next()
		x, err := t.unary()
		if err != nil {
			return "", err
		}
		return "jsTypeof(" + x + ")", nil
	case t.is("void"):
		t.next()
		if _, err := t.unary(); err != nil {
			return "", err
		}
		return "nil", nil
	}
	return t.postfix()
}

func (t *translator) postfix() (string, error) {
	var base string
	var err error
	if t.is("new") {
		base, err = t.construct()
	} else {
		base, err = t.primary()
	}
	if err != nil {
		return "", err
	}
	return t.accessors(base, true)
}

// construct translates new X(args) into a call of X.
func (t *translator) construct() (string, error) {
	t.next()
	callee, err := t.primary()
	if err != nil {
		return "", err
	}
	if callee, err = t.accessors(callee, false); err != nil {
		return "", err
	}
	args := ""
	if t.is("(") {
		if args, err = t.arguments(); err != nil {
			return "", err
		}
	}
	return callee + "(" + args + ")", nil
}

// accessors appends member, index and, when calls is set, call suffixes.
func (t *translator) accessors(base string, calls bool) (string, error) {
	for {
		switch {
		case t.is("."), t.is("?."):
			dot := t.next().text
			if dot == "?." && t.is("[") {
				idx, err := t.index()
				if err != nil {
					return "", err
				}
				base += "?.[" + idx + "]"
				continue
			}
			if dot == "?." && t.is("(") {
				args, err := t.arguments()
				if err != nil {
					return "", err
				}
				base += "(" + args + ")"
				continue
			}
			name := t.next()
			if name.kind != tokIdent {
				return "", t.unexpected(name)
			}
			base += dot + name.text
		case t.is("["):
			idx, err := t.index()
			if err != nil {
				return "", err
			}
			base += "[" + idx + "]"
		case calls && t.is("("):
			args, err := t.arguments()
			if err != nil {
				return "", err
			}
			base += "(" + args + ")"
		default:
			return base, nil
		}
	}
}

func (t *translator) index() (string, error) {
	t.next()
	idx, err := t.expression()
	if err != nil {
		return "", err
	}
	return idx, t.expect("]")
}

func (t *translator) arguments() (string, error) {
	t.next()
	args, err := t.list(")")
	if err != nil {
		return "", err
	}
	return strings.Join(args, ", "), nil
}

// list reads comma separated expressions up to and including end.
func (t *translator) list(end string) ([]string, error) {
	var items []string
	for !t.is(end) {
		item, err := t.expression()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !t.is(",") {
			break
		}
		t.next()
	}
	return items, t.expect(end)
}

func (t *translator) primary() (string, error) {
	tok := t.next()
	switch tok.kind {
	case tokNumber, tokString, tokIdent:
		return tok.text, nil
	case tokPunct:
		switch tok.text {
		case "(":
			inner, err := t.expression()
			if err != nil {
				return "", err
			}
			return "(" + inner + ")", t.expect(")")
		case "[":
			items, err := t.list("]")
			if err != nil {
				return "", err
			}
			return "[" + strings.Join(items, ", ") + "]", nil
		case "{":
			return t.object()
		}
	}
	return "", t.unexpected(tok)
}

func (t *translator) object() (string, error) {
	var pairs []string
	for !t.is("}") {
		var key string
		switch tok := t.next(); {
		case tok.kind == tokIdent || tok.kind == tokString || tok.kind == tokNumber:
			key = tok.text
		case tok.kind == tokPunct && tok.text == "[":
			inner, err := t.expression()
			if err != nil {
				return "", err
			}
			if err := t.expect("]"); err != nil {
				return "", err
			}
			key = "(" + inner + ")"
		default:
			return "", t.unexpected(tok)
		}
		if err := t.expect(":"); err != nil {
			return "", err
		}
		val, err := t.expression()
		if err != nil {
			return "", err
		}
		pairs = append(pairs, key+": "+val)
		if !t.is(",") {
			break
		}
		t.next()
	}
	if err := t.expect("}"); err != nil {
		return "", err
	}
	return "{" + strings.Join(pairs, ", ") + "}", nil
}
