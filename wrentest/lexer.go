package wrentest

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokName
	tokField
	tokStaticField
	tokNumber
	tokString
	tokPunct
)

// strPart is a literal chunk or an interpolated expression of a string.
type strPart struct {
	text   string
	isExpr bool
}

type token struct {
	text  string
	parts []strPart
	num   float64
	kind  tokenKind
	line  int
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokNewline:
		return "newline"
	default:
		return "'" + t.text + "'"
	}
}

var puncts = []string{
	"...", "..", "==", "!=", "<=", ">=", "&&", "||", "<<", ">>",
	"(", ")", "[", "]", "{", "}", ",", ".", ":", "+", "-", "*", "/", "%",
	"<", ">", "=", "!", "?", "|", "&", "^", "~",
}

type lexError struct {
	msg  string
	line int
}

func (e *lexError) Error() string { return e.msg }

type lexer struct {
	src  string
	pos  int
	line int
}

func lex(src string, line int) ([]token, error) {
	l := &lexer{src: src, line: line}
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokNewline && (len(out) == 0 || out[len(out)-1].kind == tokNewline) {
			continue
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '/' && l.peekByte(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.peekByte(1) == '*':
			if err := l.blockComment(); err != nil {
				return token{}, err
			}
		case c == '\\' && l.peekByte(1) == '\n':
			l.pos += 2
			l.line++
		default:
			return l.scan()
		}
	}
	return token{kind: tokEOF, line: l.line}, nil
}

func (l *lexer) blockComment() error {
	depth := 0
	for l.pos < len(l.src) {
		switch {
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			depth++
			l.pos += 2
		case strings.HasPrefix(l.src[l.pos:], "*/"):
			depth--
			l.pos += 2
			if depth == 0 {
				return nil
			}
		default:
			if l.src[l.pos] == '\n' {
				l.line++
			}
			l.pos++
		}
	}
	return &lexError{msg: "Error: Unterminated block comment.", line: l.line}
}

func (l *lexer) scan() (token, error) {
	c := l.src[l.pos]
	line := l.line

	switch {
	case c == '\n':
		l.pos++
		l.line++
		return token{kind: tokNewline, line: line}, nil
	case isDigit(c):
		return l.number()
	case isNameStart(c):
		start := l.pos
		for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
			l.pos++
		}
		text := l.src[start:l.pos]
		kind := tokName
		switch {
		case strings.HasPrefix(text, "__"):
			kind = tokStaticField
		case strings.HasPrefix(text, "_"):
			kind = tokField
		}
		return token{kind: kind, text: text, line: line}, nil
	case c == '"':
		return l.str()
	}

	for _, p := range puncts {
		if strings.HasPrefix(l.src[l.pos:], p) {
			l.pos += len(p)
			return token{kind: tokPunct, text: p, line: line}, nil
		}
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return token{}, &lexError{msg: fmt.Sprintf("Error: Invalid character '%c'.", r), line: line}
}

func (l *lexer) number() (token, error) {
	start := l.pos
	line := l.line
	if l.src[l.pos] == '0' && (l.peekByte(1) == 'x' || l.peekByte(1) == 'X') {
		l.pos += 2
		for l.pos < len(l.src) && isHex(l.src[l.pos]) {
			l.pos++
		}
		v, err := strconv.ParseUint(l.src[start+2:l.pos], 16, 64)
		if err != nil {
			return token{}, &lexError{msg: "Error: Invalid number literal.", line: line}
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], num: float64(v), line: line}, nil
	}

	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		save := l.pos
		l.pos++
		if c := l.peekByte(0); c == '+' || c == '-' {
			l.pos++
		}
		if !isDigit(l.peekByte(0)) {
			l.pos = save
		} else {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}

	text := l.src[start:l.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, &lexError{msg: "Error: Invalid number literal.", line: line}
	}
	return token{kind: tokNumber, text: text, num: v, line: line}, nil
}

func (l *lexer) str() (token, error) {
	line := l.line
	start := l.pos
	l.pos++

	var parts []strPart
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			parts = append(parts, strPart{text: b.String()})
			b.Reset()
		}
	}
	unterminated := &lexError{msg: "Error: Unterminated string.", line: line}

	for {
		if l.pos >= len(l.src) {
			return token{}, unterminated
		}
		c := l.src[l.pos]
		switch {
		case c == '"':
			l.pos++
			flush()
			return token{kind: tokString, text: l.src[start:l.pos], parts: parts, line: line}, nil
		case c == '\n':
			l.line++
			b.WriteByte(c)
			l.pos++
		case c == '%' && l.peekByte(1) == '(':
			flush()
			l.pos += 2
			expr, err := l.interpolation()
			if err != nil {
				return token{}, err
			}
			parts = append(parts, strPart{text: expr, isExpr: true})
		case c == '\\':
			if err := l.escape(&b); err != nil {
				return token{}, err
			}
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
}

// interpolation returns the source of a %(...) expression; the opening
// parenthesis has been consumed.
func (l *lexer) interpolation() (string, error) {
	start := l.pos
	depth := 1
	inString := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case inString && c == '\\':
			l.pos++
		case c == '"':
			inString = !inString
		case !inString && c == '(':
			depth++
		case !inString && c == ')':
			depth--
			if depth == 0 {
				expr := l.src[start:l.pos]
				l.pos++
				return expr, nil
			}
		case c == '\n':
			l.line++
		}
		l.pos++
	}
	return "", &lexError{msg: "Error: Unterminated string interpolation.", line: l.line}
}

func (l *lexer) escape(b *strings.Builder) error {
	l.pos++
	if l.pos >= len(l.src) {
		return &lexError{msg: "Error: Unterminated string.", line: l.line}
	}
	c := l.src[l.pos]
	l.pos++
	switch c {
	case '"', '\\', '%':
		b.WriteByte(c)
	case '0':
		b.WriteByte(0)
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'e':
		b.WriteByte(0x1b)
	case 'f':
		b.WriteByte('\f')
	case 'n':
		b.WriteByte('\n')
	case 'r':
		b.WriteByte('\r')
	case 't':
		b.WriteByte('\t')
	case 'v':
		b.WriteByte('\v')
	case 'x':
		v, err := l.hexDigits(2)
		if err != nil {
			return err
		}
		b.WriteByte(byte(v))
	case 'u':
		v, err := l.hexDigits(4)
		if err != nil {
			return err
		}
		b.WriteRune(rune(v))
	case 'U':
		v, err := l.hexDigits(8)
		if err != nil {
			return err
		}
		b.WriteRune(rune(v))
	default:
		return &lexError{msg: fmt.Sprintf("Error: Invalid escape character '%c'.", c), line: l.line}
	}
	return nil
}

func (l *lexer) hexDigits(n int) (uint64, error) {
	if l.pos+n > len(l.src) {
		return 0, &lexError{msg: "Error: Incomplete escape sequence.", line: l.line}
	}
	v, err := strconv.ParseUint(l.src[l.pos:l.pos+n], 16, 32)
	if err != nil {
		return 0, &lexError{msg: "Error: Invalid escape sequence.", line: l.line}
	}
	l.pos += n
	return v, nil
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isHex(c byte) bool       { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isNameStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isNameChar(c byte) bool  { return isNameStart(c) || isDigit(c) }
