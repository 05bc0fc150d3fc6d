package marker

import (
	"slices"
	"strings"

	"github.com/matzehuels/stacklock/pkg/errors"
)

// ops ordered so that no operator is shadowed by a shorter prefix.
var ops = []string{"===", "<=", "!=", "==", ">=", "~=", "<", ">"}

type parser struct {
	input string
	pos   int
}

func (p *parser) errorf(format string, args ...any) error {
	rest := p.input[min(p.pos, len(p.input)):]
	if len(rest) > 16 {
		rest = rest[:16]
	}
	if rest == "" {
		rest = "EOF"
	}
	err := errors.New(errors.ErrCodeMarker, format, args...)
	err.Message += " at " + quote(rest) + " in " + quote(p.input)
	return err
}

func quote(s string) string { return "\"" + s + "\"" }

func (p *parser) skipWsp() bool {
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
	return p.pos > start
}

func (p *parser) accept(s string) bool {
	if !strings.HasPrefix(p.input[p.pos:], s) {
		return false
	}
	p.pos += len(s)
	return true
}

// acceptWord accepts a keyword only when it is not the prefix of a longer identifier.
func (p *parser) acceptWord(w string) bool {
	if !strings.HasPrefix(p.input[p.pos:], w) {
		return false
	}
	end := p.pos + len(w)
	if end < len(p.input) && isIdent(p.input[end]) {
		return false
	}
	p.pos = end
	return true
}

func isIdent(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		save := p.pos
		p.skipWsp()
		if !p.acceptWord("or") {
			p.pos = save
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = or{left, right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	for {
		save := p.pos
		p.skipWsp()
		if !p.acceptWord("and") {
			p.pos = save
			return left, nil
		}
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		left = and{left, right}
	}
}

func (p *parser) parseExpr() (node, error) {
	p.skipWsp()
	if p.accept("(") {
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipWsp()
		if !p.accept(")") {
			return nil, p.errorf("expected closing )")
		}
		return n, nil
	}
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	e := expr{op: op, left: left, right: right}
	if left.name == "extra" || right.name == "extra" {
		if op != "==" && op != "!=" {
			return nil, p.errorf("extra can only be compared with == or !=, got %s", op)
		}
		if _, ok := e.extraName(); !ok {
			return nil, p.errorf("extra must be compared with a string literal")
		}
	}
	return e, nil
}

func (p *parser) parseOperand() (operand, error) {
	p.skipWsp()
	if p.pos >= len(p.input) {
		return operand{}, p.errorf("expected string or variable name")
	}
	if q := p.input[p.pos]; q == '"' || q == '\'' {
		end := strings.IndexByte(p.input[p.pos+1:], q)
		if end < 0 {
			return operand{}, p.errorf("unterminated string literal")
		}
		val := p.input[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return operand{value: val}, nil
	}
	start := p.pos
	for p.pos < len(p.input) && isIdent(p.input[p.pos]) {
		p.pos++
	}
	name := p.input[start:p.pos]
	if name == "" {
		return operand{}, p.errorf("expected string or variable name")
	}
	// Legacy setuptools spellings.
	switch name {
	case "os.name":
		name = "os_name"
	case "sys.platform":
		name = "sys_platform"
	case "platform.version":
		name = "platform_version"
	case "platform.machine":
		name = "platform_machine"
	case "platform.python_implementation", "python_implementation":
		name = "platform_python_implementation"
	}
	if name != "extra" && !slices.Contains(Variables, name) {
		return operand{}, unknownVariable(name)
	}
	return operand{name: name}, nil
}

func (p *parser) parseOp() (string, error) {
	p.skipWsp()
	for _, op := range ops {
		if p.accept(op) {
			return op, nil
		}
	}
	if p.acceptWord("in") {
		return "in", nil
	}
	if p.acceptWord("not") {
		if !p.skipWsp() || !p.acceptWord("in") {
			return "", p.errorf("expected 'in' after 'not'")
		}
		return "not in", nil
	}
	return "", p.errorf("expected comparison operator")
}
