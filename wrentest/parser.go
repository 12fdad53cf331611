package wrentest

import (
	"fmt"
	"strings"
)

var keywords = map[string]bool{
	"as": true, "break": true, "class": true, "construct": true, "continue": true,
	"else": true, "false": true, "for": true, "foreign": true, "if": true,
	"import": true, "in": true, "is": true, "null": true, "return": true,
	"static": true, "super": true, "this": true, "true": true, "var": true,
	"while": true,
}

// operators that may be declared as class members.
var memberOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "<": true, ">": true,
	"<=": true, ">=": true, "==": true, "!=": true, "!": true, "~": true,
	"..": true, "...": true,
}

type compileError struct {
	msg  string
	line int
}

func (e *compileError) Error() string { return e.msg }

type parser struct {
	toks []token
	pos  int
}

// parse compiles module source into a statement list.
func parse(src string) ([]node, error) {
	toks, err := lex(src, 1)
	if err != nil {
		le := err.(*lexError)
		return nil, &compileError{msg: le.msg, line: le.line}
	}
	p := &parser{toks: toks}
	return p.statements(true)
}

// parseExpression compiles the source of a string interpolation.
func parseExpression(src string, line int) (node, error) {
	toks, err := lex(src, line)
	if err != nil {
		le := err.(*lexError)
		return nil, &compileError{msg: le.msg, line: le.line}
	}
	p := &parser{toks: toks}
	p.skipNewlines()
	e, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if p.peek().kind != tokEOF {
		return nil, p.errorf("Expect ')' after interpolated expression.")
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokName) && t.text == text
}

func (p *parser) match(text string) bool {
	if p.is(text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(text, msg string) error {
	if !p.match(text) {
		return p.errorf("%s", msg)
	}
	return nil
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.advance()
	}
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.peek()
	return &compileError{
		msg:  fmt.Sprintf("Error at %s: %s", t.describe(), fmt.Sprintf(format, args...)),
		line: t.line,
	}
}

func (p *parser) name(msg string) (string, error) {
	t := p.peek()
	if t.kind != tokName || keywords[t.text] {
		return "", p.errorf("%s", msg)
	}
	p.advance()
	return t.text, nil
}

// statements reads statements until end of file (top) or a closing brace.
func (p *parser) statements(top bool) ([]node, error) {
	var out []node
	for {
		p.skipNewlines()
		t := p.peek()
		if t.kind == tokEOF {
			if top {
				return out, nil
			}
			return nil, p.errorf("Expect '}' after block.")
		}
		if !top && p.match("}") {
			return out, nil
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
	}
}

func (p *parser) endOfStatement() error {
	t := p.peek()
	if t.kind == tokNewline || t.kind == tokEOF || p.is("}") {
		return nil
	}
	return p.errorf("Expect end of line after statement.")
}

func (p *parser) statement() (node, error) {
	t := p.peek()
	l := srcLine(t.line)

	if t.kind == tokPunct && t.text == "{" {
		p.advance()
		body, err := p.statements(false)
		if err != nil {
			return nil, err
		}
		return &blockStmt{srcLine: l, body: body}, nil
	}
	if t.kind != tokName {
		return p.expression()
	}

	switch t.text {
	case "class":
		p.advance()
		return p.class(l, false)
	case "foreign":
		p.advance()
		if err := p.expect("class", "Expect 'class' after 'foreign'."); err != nil {
			return nil, err
		}
		return p.class(l, true)
	case "import":
		p.advance()
		return p.importStatement(l)
	case "var":
		p.advance()
		name, err := p.name("Expect variable name.")
		if err != nil {
			return nil, err
		}
		s := &varStmt{srcLine: l, name: name}
		if p.match("=") {
			p.skipNewlines()
			if s.init, err = p.expression(); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "if":
		p.advance()
		cond, err := p.condition("if")
		if err != nil {
			return nil, err
		}
		s := &ifStmt{srcLine: l, cond: cond}
		if s.then, err = p.body(); err != nil {
			return nil, err
		}
		save := p.pos
		p.skipNewlines()
		if p.match("else") {
			p.skipNewlines()
			if s.els, err = p.body(); err != nil {
				return nil, err
			}
		} else {
			p.pos = save
		}
		return s, nil
	case "while":
		p.advance()
		cond, err := p.condition("while")
		if err != nil {
			return nil, err
		}
		s := &whileStmt{srcLine: l, cond: cond}
		if s.body, err = p.body(); err != nil {
			return nil, err
		}
		return s, nil
	case "for":
		p.advance()
		return p.forStatement(l)
	case "return":
		p.advance()
		s := &returnStmt{srcLine: l}
		if k := p.peek().kind; k != tokNewline && k != tokEOF && !p.is("}") {
			var err error
			if s.value, err = p.expression(); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "break":
		p.advance()
		return &breakStmt{srcLine: l}, nil
	}
	return p.expression()
}

func (p *parser) condition(keyword string) (node, error) {
	if err := p.expect("(", fmt.Sprintf("Expect '(' after '%s'.", keyword)); err != nil {
		return nil, err
	}
	p.skipNewlines()
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if err := p.expect(")", "Expect ')' after condition."); err != nil {
		return nil, err
	}
	return cond, nil
}

// body parses the statement controlled by if, while or for.
func (p *parser) body() (node, error) {
	p.skipNewlines()
	return p.statement()
}

func (p *parser) forStatement(l srcLine) (node, error) {
	if err := p.expect("(", "Expect '(' after 'for'."); err != nil {
		return nil, err
	}
	name, err := p.name("Expect for loop variable name.")
	if err != nil {
		return nil, err
	}
	if err := p.expect("in", "Expect 'in' after loop variable."); err != nil {
		return nil, err
	}
	p.skipNewlines()
	seq, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")", "Expect ')' after loop expression."); err != nil {
		return nil, err
	}
	s := &forStmt{srcLine: l, name: name, seq: seq}
	if s.body, err = p.body(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *parser) importStatement(l srcLine) (node, error) {
	t := p.peek()
	if t.kind != tokString || len(t.parts) > 1 || (len(t.parts) == 1 && t.parts[0].isExpr) {
		return nil, p.errorf("Expect a string after 'import'.")
	}
	p.advance()
	s := &importStmt{srcLine: l, module: joinParts(t.parts)}
	if !p.match("for") {
		return s, nil
	}
	for {
		p.skipNewlines()
		name, err := p.name("Expect variable name.")
		if err != nil {
			return nil, err
		}
		s.names = append(s.names, name)
		if !p.match(",") {
			return s, nil
		}
	}
}

func joinParts(parts []strPart) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.text)
	}
	return b.String()
}

func (p *parser) class(l srcLine, foreign bool) (node, error) {
	name, err := p.name("Expect class name.")
	if err != nil {
		return nil, err
	}
	c := &classStmt{srcLine: l, name: name, foreign: foreign}
	if p.match("is") {
		if c.super, err = p.name("Expect superclass name."); err != nil {
			return nil, err
		}
	}
	p.skipNewlines()
	if err := p.expect("{", "Expect '{' after class declaration."); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for {
		p.skipNewlines()
		if p.match("}") {
			return c, nil
		}
		if p.peek().kind == tokEOF {
			return nil, p.errorf("Expect '}' after class body.")
		}
		m, err := p.member(name)
		if err != nil {
			return nil, err
		}
		key := m.sig
		if m.static || m.construct {
			key = "static " + key
		}
		if seen[key] {
			return nil, &compileError{
				msg:  fmt.Sprintf("Error at '%s': Class %s already defines a method '%s'.", m.name, name, m.sig),
				line: m.line,
			}
		}
		seen[key] = true
		c.members = append(c.members, m)
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
	}
}

func (p *parser) member(className string) (*memberDecl, error) {
	m := &memberDecl{line: p.peek().line}
	m.foreign = p.match("foreign")
	m.static = p.match("static")

	var params []string
	t := p.peek()
	switch {
	case p.match("construct"):
		name, err := p.name("Expect constructor name after 'construct'.")
		if err != nil {
			return nil, err
		}
		if !p.is("(") {
			return nil, p.errorf("A constructor cannot be a getter.")
		}
		if params, err = p.paramList("(", ")"); err != nil {
			return nil, err
		}
		m.construct = true
		m.name = name
		m.sig = signature(name, len(params))

	case p.match("["):
		var err error
		if params, err = p.paramsUntil("]"); err != nil {
			return nil, err
		}
		m.name = "[]"
		m.sig = "[" + underscores(len(params)) + "]"
		if p.match("=") {
			value, err := p.paramList("(", ")")
			if err != nil {
				return nil, err
			}
			if len(value) != 1 {
				return nil, p.errorf("Expect one parameter for a subscript setter.")
			}
			params = append(params, value[0])
			m.sig += "=(_)"
		}

	case t.kind == tokPunct && memberOperators[t.text]:
		p.advance()
		m.name = t.text
		m.sig = t.text
		if p.is("(") {
			var err error
			if params, err = p.paramList("(", ")"); err != nil {
				return nil, err
			}
			if len(params) != 1 {
				return nil, p.errorf("Expect one parameter for operator '%s'.", t.text)
			}
			m.sig += "(_)"
		}

	default:
		name, err := p.name("Expect method definition.")
		if err != nil {
			return nil, err
		}
		m.name = name
		switch {
		case p.match("="):
			value, err := p.paramList("(", ")")
			if err != nil {
				return nil, err
			}
			if len(value) != 1 {
				return nil, p.errorf("Expect one parameter for a setter.")
			}
			params = value
			m.sig = name + "=(_)"
		case p.is("("):
			if params, err = p.paramList("(", ")"); err != nil {
				return nil, err
			}
			m.sig = signature(name, len(params))
		default:
			m.sig = name
		}
	}

	if m.foreign {
		m.fn = &fnDecl{name: className + "." + m.sig, params: params}
		return m, nil
	}
	if err := p.expect("{", "Expect '{' to begin method body."); err != nil {
		return nil, err
	}
	fn, err := p.fnBody(params)
	if err != nil {
		return nil, err
	}
	fn.name = className + "." + m.sig
	m.fn = fn
	return m, nil
}

func (p *parser) paramList(open, close string) ([]string, error) {
	if err := p.expect(open, fmt.Sprintf("Expect '%s' before parameters.", open)); err != nil {
		return nil, err
	}
	return p.paramsUntil(close)
}

func (p *parser) paramsUntil(close string) ([]string, error) {
	var params []string
	p.skipNewlines()
	if p.match(close) {
		return params, nil
	}
	for {
		p.skipNewlines()
		name, err := p.name("Expect parameter name.")
		if err != nil {
			return nil, err
		}
		params = append(params, name)
		p.skipNewlines()
		if p.match(close) {
			return params, nil
		}
		if err := p.expect(",", fmt.Sprintf("Expect '%s' after parameters.", close)); err != nil {
			return nil, err
		}
	}
}

// fnBody parses a body after its opening brace.
func (p *parser) fnBody(params []string) (*fnDecl, error) {
	fn := &fnDecl{params: params}
	if p.match("}") {
		return fn, nil
	}
	if p.peek().kind == tokNewline {
		body, err := p.statements(false)
		if err != nil {
			return nil, err
		}
		fn.body = body
		return fn, nil
	}

	s, err := p.statement()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if err := p.expect("}", "Expect '}' at end of block."); err != nil {
		return nil, err
	}
	if isStatement(s) {
		fn.body = []node{s}
	} else {
		fn.expr = s
	}
	return fn, nil
}

func isStatement(n node) bool {
	switch n.(type) {
	case *varStmt, *blockStmt, *ifStmt, *whileStmt, *forStmt, *returnStmt,
		*breakStmt, *importStmt, *classStmt:
		return true
	}
	return false
}

func (p *parser) expression() (node, error) {
	return p.assignment()
}

func (p *parser) assignment() (node, error) {
	target, err := p.conditional()
	if err != nil {
		return nil, err
	}
	if !p.is("=") {
		return target, nil
	}
	t := p.advance()
	switch x := target.(type) {
	case *nameExpr, *fieldExpr, *subscriptExpr:
	case *callExpr:
		if len(x.args) != 0 || x.sig != x.name {
			return nil, &compileError{msg: "Error at '=': Invalid assignment target.", line: t.line}
		}
	default:
		return nil, &compileError{msg: "Error at '=': Invalid assignment target.", line: t.line}
	}
	p.skipNewlines()
	value, err := p.assignment()
	if err != nil {
		return nil, err
	}
	return &assignExpr{srcLine: srcLine(t.line), target: target, value: value}, nil
}

func (p *parser) conditional() (node, error) {
	cond, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if !p.is("?") {
		return cond, nil
	}
	t := p.advance()
	p.skipNewlines()
	then, err := p.assignment()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if err := p.expect(":", "Expect ':' after then branch of conditional operator."); err != nil {
		return nil, err
	}
	p.skipNewlines()
	els, err := p.assignment()
	if err != nil {
		return nil, err
	}
	return &condExpr{srcLine: srcLine(t.line), cond: cond, then: then, els: els}, nil
}

// binary precedence levels, lowest first.
var precedence = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"is"},
	{"<", ">", "<=", ">="},
	{"..", "..."},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) binary(level int) (node, error) {
	if level == len(precedence) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		op := ""
		for _, candidate := range precedence[level] {
			if (t.kind == tokPunct || t.kind == tokName) && t.text == candidate {
				op = candidate
				break
			}
		}
		if op == "" {
			return left, nil
		}
		p.advance()
		p.skipNewlines()
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		l := srcLine(t.line)
		switch op {
		case "||", "&&":
			left = &logicalExpr{srcLine: l, and: op == "&&", left: left, right: right}
		case "is":
			left = &isExpr{srcLine: l, left: left, right: right}
		default:
			left = &binaryExpr{srcLine: l, op: op, left: left, right: right}
		}
	}
}

func (p *parser) unary() (node, error) {
	t := p.peek()
	if t.kind == tokPunct && (t.text == "-" || t.text == "!" || t.text == "~") {
		p.advance()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{srcLine: srcLine(t.line), op: t.text, operand: operand}, nil
	}
	return p.call()
}

func (p *parser) call() (node, error) {
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.is("."):
			t := p.advance()
			p.skipNewlines()
			name, err := p.name("Expect method name after '.'.")
			if err != nil {
				return nil, err
			}
			c := &callExpr{srcLine: srcLine(t.line), recv: e, name: name, sig: name}
			if err := p.callArgs(c); err != nil {
				return nil, err
			}
			e = c
		case p.is("["):
			t := p.advance()
			args, err := p.arguments("]")
			if err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return nil, p.errorf("Expect subscript arguments.")
			}
			e = &subscriptExpr{srcLine: srcLine(t.line), recv: e, args: args}
		default:
			return e, nil
		}
	}
}

// callArgs parses an optional argument list and block argument for c.
func (p *parser) callArgs(c *callExpr) error {
	if p.match("(") {
		args, err := p.arguments(")")
		if err != nil {
			return err
		}
		c.args = args
		c.sig = signature(c.name, len(args))
	}
	if p.is("{") {
		t := p.advance()
		fn, err := p.blockArgument()
		if err != nil {
			return err
		}
		c.args = append(c.args, &fnLit{srcLine: srcLine(t.line), fn: fn})
		c.sig = signature(c.name, len(c.args))
		fn.name = c.sig + " block argument"
	}
	return nil
}

func (p *parser) blockArgument() (*fnDecl, error) {
	var params []string
	if p.match("|") {
		var err error
		if params, err = p.paramsUntil("|"); err != nil {
			return nil, err
		}
	}
	return p.fnBody(params)
}

func (p *parser) arguments(close string) ([]node, error) {
	var args []node
	p.skipNewlines()
	if p.match(close) {
		return args, nil
	}
	for {
		p.skipNewlines()
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipNewlines()
		if p.match(close) {
			return args, nil
		}
		if err := p.expect(",", fmt.Sprintf("Expect '%s' after arguments.", close)); err != nil {
			return nil, err
		}
	}
}

func (p *parser) primary() (node, error) {
	t := p.peek()
	l := srcLine(t.line)

	switch t.kind {
	case tokNumber:
		p.advance()
		return &numLit{srcLine: l, v: t.num}, nil
	case tokString:
		p.advance()
		return p.stringLiteral(t)
	case tokField:
		p.advance()
		return &fieldExpr{srcLine: l, name: t.text}, nil
	case tokStaticField:
		p.advance()
		return &fieldExpr{srcLine: l, name: t.text, static: true}, nil
	case tokName:
		switch t.text {
		case "true", "false":
			p.advance()
			return &boolLit{srcLine: l, v: t.text == "true"}, nil
		case "null":
			p.advance()
			return &nullLit{srcLine: l}, nil
		case "this":
			p.advance()
			return &thisExpr{srcLine: l}, nil
		}
		if keywords[t.text] {
			return nil, p.errorf("Expected expression.")
		}
		p.advance()
		if p.is("(") {
			c := &callExpr{srcLine: l, name: t.text, sig: t.text}
			if err := p.callArgs(c); err != nil {
				return nil, err
			}
			return c, nil
		}
		return &nameExpr{srcLine: l, name: t.text}, nil
	case tokPunct:
		switch t.text {
		case "(":
			p.advance()
			p.skipNewlines()
			e, err := p.expression()
			if err != nil {
				return nil, err
			}
			p.skipNewlines()
			if err := p.expect(")", "Expect ')' after expression."); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			p.advance()
			elems, err := p.arguments("]")
			if err != nil {
				return nil, err
			}
			return &listLit{srcLine: l, elems: elems}, nil
		case "{":
			p.advance()
			return p.mapLiteral(l)
		}
	}
	return nil, p.errorf("Expected expression.")
}

func (p *parser) mapLiteral(l srcLine) (node, error) {
	m := &mapLit{srcLine: l}
	p.skipNewlines()
	if p.match("}") {
		return m, nil
	}
	for {
		p.skipNewlines()
		key, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(":", "Expect ':' after map key."); err != nil {
			return nil, err
		}
		p.skipNewlines()
		val, err := p.expression()
		if err != nil {
			return nil, err
		}
		m.keys = append(m.keys, key)
		m.vals = append(m.vals, val)
		p.skipNewlines()
		if p.match("}") {
			return m, nil
		}
		if err := p.expect(",", "Expect '}' after map entries."); err != nil {
			return nil, err
		}
	}
}

func (p *parser) stringLiteral(t token) (node, error) {
	l := srcLine(t.line)
	interpolated := false
	for _, part := range t.parts {
		if part.isExpr {
			interpolated = true
			break
		}
	}
	if !interpolated {
		return &strLit{srcLine: l, v: joinParts(t.parts)}, nil
	}

	s := &interpLit{srcLine: l}
	for _, part := range t.parts {
		if !part.isExpr {
			s.parts = append(s.parts, &strLit{srcLine: l, v: part.text})
			continue
		}
		e, err := parseExpression(part.text, t.line)
		if err != nil {
			return nil, err
		}
		s.parts = append(s.parts, e)
	}
	return s, nil
}

func signature(name string, arity int) string {
	return name + "(" + underscores(arity) + ")"
}

func underscores(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("_,", n-1) + "_"
}
