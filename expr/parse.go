package expr

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokStr
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

var twoCharOps = map[string]bool{
	"==": true, "!=": true, "<=": true, ">=": true, "&&": true, "||": true,
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.pos++
		case unicode.IsDigit(rune(c)):
			l.lexNumber()
		case c == '_' || unicode.IsLetter(rune(c)):
			l.lexIdent()
		case c == '"' || c == '\'':
			if err := l.lexString(c); err != nil {
				return nil, err
			}
		default:
			if l.pos+1 < len(l.src) && twoCharOps[l.src[l.pos:l.pos+2]] {
				l.emit(tokOp, l.src[l.pos:l.pos+2])
				l.pos += 2
			} else if strings.ContainsRune("+-*/%<>!=().,", rune(c)) {
				l.emit(tokOp, string(c))
				l.pos++
			} else {
				return nil, errors.Errorf("unexpected character %q at %d", c, l.pos)
			}
		}
	}
	l.emit(tokEOF, "")
	return l.toks, nil
}

func (l *lexer) emit(kind tokenKind, text string) {
	l.toks = append(l.toks, token{kind: kind, text: text, pos: l.pos})
}

func (l *lexer) lexNumber() {
	start := l.pos
	kind := tokInt
	for l.pos < len(l.src) && unicode.IsDigit(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		kind = tokFloat
		l.pos++
		for l.pos < len(l.src) && unicode.IsDigit(rune(l.src[l.pos])) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		kind = tokFloat
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		for l.pos < len(l.src) && unicode.IsDigit(rune(l.src[l.pos])) {
			l.pos++
		}
	}
	l.toks = append(l.toks, token{kind: kind, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) {
		c := rune(l.src[l.pos])
		if c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) {
			l.pos++
		} else {
			break
		}
	}
	l.toks = append(l.toks, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			switch l.src[l.pos] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(l.src[l.pos])
			}
			l.pos++
			continue
		}
		if c == quote {
			l.pos++
			l.toks = append(l.toks, token{kind: tokStr, text: b.String(), pos: start})
			return nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return errors.Errorf("unterminated string starting at %d", start)
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token  { return p.toks[p.i] }
func (p *parser) next() token  { t := p.toks[p.i]; p.i++; return t }
func (p *parser) isOp(s string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == s
}

func (p *parser) expectOp(s string) error {
	if !p.isOp(s) {
		return errors.Errorf("expected %q at %d, got %q", s, p.peek().pos, p.peek().text)
	}
	p.next()
	return nil
}

// Parse parses a single expression.
func Parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, errors.Wrapf(err, "lexing %q", src)
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", src)
	}
	if p.peek().kind != tokEOF {
		return nil, errors.Errorf("trailing input in %q at %d", src, p.peek().pos)
	}
	return n, nil
}

// ParseProgram parses a procedure body: one assignment per line (or
// semicolon separated), targets being either a bare name or result.<name>.
// Blank lines and lines starting with # are skipped.
func ParseProgram(src string) ([]Stmt, error) {
	var stmts []Stmt
	for _, line := range strings.FieldsFunc(src, func(r rune) bool { return r == '\n' || r == ';' }) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stmt, err := parseStmt(line)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func parseStmt(line string) (Stmt, error) {
	eq := assignIndex(line)
	if eq < 0 {
		return Stmt{}, errors.Errorf("not an assignment: %q", line)
	}
	target := strings.TrimSpace(line[:eq])
	var s Stmt
	if strings.HasPrefix(target, "result.") {
		s.IntoResult = true
		target = strings.TrimPrefix(target, "result.")
	}
	if !isIdentifier(target) {
		return Stmt{}, errors.Errorf("bad assignment target %q", target)
	}
	s.Target = target
	x, err := Parse(line[eq+1:])
	if err != nil {
		return Stmt{}, err
	}
	s.X = x
	return s, nil
}

// assignIndex finds the top-level = of an assignment, skipping ==, !=,
// <=, >= and anything inside strings.
func assignIndex(line string) int {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '=':
			if i+1 < len(line) && line[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.ContainsRune("!<>", rune(line[i-1])) {
				continue
			}
			return i
		}
	}
	return -1
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

func (p *parser) parseOr() (Node, error) {
	n, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		n = &Binary{Op: "||", L: n, R: r}
	}
	return n, nil
}

func (p *parser) parseAnd() (Node, error) {
	n, err := p.parseCompare()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") {
		p.next()
		r, err := p.parseCompare()
		if err != nil {
			return nil, err
		}
		n = &Binary{Op: "&&", L: n, R: r}
	}
	return n, nil
}

func (p *parser) parseCompare() (Node, error) {
	n, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.isOp(op) {
			p.next()
			r, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			return &Binary{Op: op, L: n, R: r}, nil
		}
	}
	return n, nil
}

func (p *parser) parseAdd() (Node, error) {
	n, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text
		r, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		n = &Binary{Op: op, L: n, R: r}
	}
	return n, nil
}

func (p *parser) parseMul() (Node, error) {
	n, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		op := p.next().text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n = &Binary{Op: op, L: n, R: r}
	}
	return n, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.isOp("-") || p.isOp("!") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokInt:
		p.next()
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad integer %q", t.text)
		}
		return &Lit{Val: v}, nil
	case tokFloat:
		p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad number %q", t.text)
		}
		return &Lit{Val: v}, nil
	case tokStr:
		p.next()
		return &Lit{Val: t.text}, nil
	case tokIdent:
		p.next()
		switch t.text {
		case "true":
			return &Lit{Val: true}, nil
		case "false":
			return &Lit{Val: false}, nil
		case "nil":
			return &Lit{Val: nil}, nil
		}
		if t.text == "result" && p.isOp(".") {
			p.next()
			f := p.next()
			if f.kind != tokIdent {
				return nil, errors.Errorf("expected field name after result. at %d", f.pos)
			}
			return &ResultRef{Name: f.text}, nil
		}
		if p.isOp("(") {
			return p.parseCall(t.text)
		}
		return &Ref{Name: t.text}, nil
	case tokOp:
		if t.text == "(" {
			p.next()
			n, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return n, nil
		}
	}
	return nil, errors.Errorf("unexpected token %q at %d", t.text, t.pos)
}

func (p *parser) parseCall(name string) (Node, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	call := &Call{Name: name}
	if p.isOp(")") {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.isOp(",") {
			p.next()
			continue
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
}
