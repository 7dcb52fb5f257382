package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/ports"
)

// calculatorTool evaluates arithmetic expressions with a small recursive
// descent parser: + - * / % ^, parentheses and unary minus.
type calculatorTool struct{}

// NewCalculator constructs the calculator tool.
func NewCalculator() ports.Tool {
	return calculatorTool{}
}

func (calculatorTool) Type() ports.ToolType {
	return ports.ToolTypeCalculator
}

func (calculatorTool) Name() string {
	return "calculator"
}

func (calculatorTool) Description() string {
	return "Evaluate an arithmetic expression. Parameters: expression (supports + - * / % ^ and parentheses)."
}

func (calculatorTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Arithmetic expression to evaluate",
			},
		},
		"required": []string{"expression"},
	}
}

func (calculatorTool) ValidateParams(params map[string]any) bool {
	expr, ok := stringParam(params, "expression")
	return ok && strings.TrimSpace(expr) != ""
}

func (calculatorTool) Execute(_ context.Context, params map[string]any) (any, error) {
	expr, err := requireString(params, "expression")
	if err != nil {
		return nil, err
	}

	value, err := evalExpression(expr)
	if err != nil {
		return nil, err
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return nil, fmt.Errorf("expression result is not a finite number")
	}

	return map[string]any{
		"expression": expr,
		"result":     value,
	}, nil
}

type exprParser struct {
	input string
	pos   int
}

func evalExpression(input string) (float64, error) {
	p := &exprParser{input: input}
	value, err := p.parseAddSub()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if !p.eof() {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

func (p *exprParser) parseAddSub() (float64, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.consume('+'):
			right, err := p.parseMulDiv()
			if err != nil {
				return 0, err
			}
			left += right
		case p.consume('-'):
			right, err := p.parseMulDiv()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseMulDiv() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.consume('*'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.consume('/'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.consume('%'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.consume('^') {
		// Right associative.
		exponent, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exponent), nil
	}
	return base, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	if p.consume('-') {
		value, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpaces()
	if p.consume('(') {
		value, err := p.parseAddSub()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if !p.consume(')') {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		return value, nil
	}

	start := p.pos
	for !p.eof() {
		ch := rune(p.input[p.pos])
		if unicode.IsDigit(ch) || ch == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", p.pos)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}

func (p *exprParser) skipSpaces() {
	for !p.eof() && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) consume(ch byte) bool {
	if p.eof() || p.input[p.pos] != ch {
		return false
	}
	p.pos++
	return true
}

func (p *exprParser) eof() bool {
	return p.pos >= len(p.input)
}
