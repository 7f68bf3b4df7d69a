package parser

import (
	"fmt"

	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
	"github.com/ipe-systems/ipe/internal/lang/lexer"
)

// Parser is a recursive-descent parser over a pre-tokenized source.
type Parser struct {
	tokens   []lexer.Token
	position int
}

// New tokenizes source and returns a Parser positioned at the first token.
func New(source string) *Parser {
	tokens := lexer.New(source).Tokenize()
	return &Parser{tokens: tokens}
}

// ParsePolicy parses a single complete `policy NAME: "intent" ...` block.
func (p *Parser) ParsePolicy() (*Policy, error) {
	p.skipNewlines()

	if err := p.expectKind(lexer.KindPolicy); err != nil {
		return nil, err
	}

	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	if err := p.expectKind(lexer.KindColon); err != nil {
		return nil, err
	}
	p.skipNewlines()

	intent, err := p.expectString()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()

	triggers, err := p.parseTriggers()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()

	requirements, err := p.parseRequirements()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()

	var metadata *Metadata
	if p.checkKind(lexer.KindMetadata) {
		metadata, err = p.parseMetadata()
		if err != nil {
			return nil, err
		}
	}

	return &Policy{
		Name:         name,
		Intent:       intent,
		Triggers:     triggers,
		Requirements: requirements,
		Metadata:     metadata,
	}, nil
}

func (p *Parser) parseTriggers() ([]Condition, error) {
	if err := p.expectKind(lexer.KindTriggers); err != nil {
		return nil, err
	}
	if err := p.expectKind(lexer.KindWhen); err != nil {
		return nil, err
	}
	p.skipNewlines()

	var triggers []Condition
	for {
		expr, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, Condition{Expr: expr})
		p.skipNewlines()

		if p.checkKind(lexer.KindRequires) || p.checkKind(lexer.KindDenies) {
			break
		}
		if p.checkKind(lexer.KindAnd) {
			p.advance()
			p.skipNewlines()
			continue
		}
		break
	}
	return triggers, nil
}

func (p *Parser) parseRequirements() (Requirements, error) {
	switch {
	case p.checkKind(lexer.KindRequires):
		p.advance()
		p.skipNewlines()

		var conditions []Condition
		for {
			expr, err := p.ParseExpression()
			if err != nil {
				return Requirements{}, err
			}
			conditions = append(conditions, Condition{Expr: expr})
			p.skipNewlines()

			if p.checkKind(lexer.KindAnd) {
				p.advance()
				p.skipNewlines()
				continue
			}
			if p.checkKind(lexer.KindWhere) {
				p.advance()
				p.skipNewlines()

				var whereConds []Condition
				for {
					wExpr, err := p.ParseExpression()
					if err != nil {
						return Requirements{}, err
					}
					whereConds = append(whereConds, Condition{Expr: wExpr})
					p.skipNewlines()
					if p.checkKind(lexer.KindAnd) {
						p.advance()
						p.skipNewlines()
						continue
					}
					break
				}
				return Requirements{
					Kind:        RequirementsKindRequires,
					Conditions:  conditions,
					WhereClause: whereConds,
					HasWhere:    true,
				}, nil
			}
			break
		}
		return Requirements{Kind: RequirementsKindRequires, Conditions: conditions}, nil

	case p.checkKind(lexer.KindDenies):
		p.advance()
		p.skipNewlines()

		req := Requirements{Kind: RequirementsKindDenies}
		if p.checkKind(lexer.KindWith) {
			p.advance()
			if err := p.expectKind(lexer.KindReason); err != nil {
				return Requirements{}, err
			}
			reason, err := p.expectString()
			if err != nil {
				return Requirements{}, err
			}
			req.DenyReason = reason
			req.HasDenyReason = true
		}
		return req, nil

	default:
		return Requirements{}, ipeerr.New(ipeerr.KindParse, "expected 'requires' or 'denies'")
	}
}

func (p *Parser) parseMetadata() (*Metadata, error) {
	if err := p.expectKind(lexer.KindMetadata); err != nil {
		return nil, err
	}
	p.skipNewlines()

	m := &Metadata{}
	for {
		key, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKind(lexer.KindColon); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		m.Fields = append(m.Fields, MetadataField{Key: key, Value: val})
		p.skipNewlines()

		if p.isAtEnd() {
			break
		}
		cur := p.current()
		if !cur.Kind.IsLiteral() && cur.Kind != lexer.KindIdent {
			break
		}
	}
	return m, nil
}

// ParseExpression parses a full boolean expression (or/and/comparison/in/not).
func (p *Parser) ParseExpression() (Expression, error) {
	return p.parseLogicalOr()
}

func (p *Parser) parseLogicalOr() (Expression, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return Expression{}, err
	}
	p.skipNewlines()
	for p.checkKind(lexer.KindOr) {
		p.advance()
		p.skipNewlines()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return Expression{}, err
		}
		left = Expression{Kind: ExprLogical, LogicalOp: LogicalOr, Operands: []Expression{left, right}}
		p.skipNewlines()
	}
	return left, nil
}

func (p *Parser) parseLogicalAnd() (Expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return Expression{}, err
	}
	p.skipNewlines()
	for p.checkKind(lexer.KindAnd) {
		p.advance()
		p.skipNewlines()
		right, err := p.parseComparison()
		if err != nil {
			return Expression{}, err
		}
		left = Expression{Kind: ExprLogical, LogicalOp: LogicalAnd, Operands: []Expression{left, right}}
		p.skipNewlines()
	}
	return left, nil
}

func (p *Parser) parseComparison() (Expression, error) {
	left, err := p.parseInExpression()
	if err != nil {
		return Expression{}, err
	}

	if op, ok := p.parseComparisonOp(); ok {
		p.advance()
		right, err := p.parseInExpression()
		if err != nil {
			return Expression{}, err
		}
		return Expression{Kind: ExprBinary, Left: &left, Comp: op, Right: &right}, nil
	}
	return left, nil
}

func (p *Parser) parseInExpression() (Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return Expression{}, err
	}

	if p.checkKind(lexer.KindIn) {
		p.advance()
		if err := p.expectKind(lexer.KindLBracket); err != nil {
			return Expression{}, err
		}
		var values []Value
		for {
			v, err := p.parseValue()
			if err != nil {
				return Expression{}, err
			}
			values = append(values, v)
			if p.checkKind(lexer.KindComma) {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectKind(lexer.KindRBracket); err != nil {
			return Expression{}, err
		}
		return Expression{Kind: ExprIn, InExpr: expr, InList: values}, nil
	}
	return expr, nil
}

func (p *Parser) parsePrimary() (Expression, error) {
	cur := p.current()

	switch cur.Kind {
	case lexer.KindStringLit:
		p.advance()
		return Expression{Kind: ExprLiteral, Literal: Value{Kind: ValString, Str: cur.StrVal}}, nil
	case lexer.KindIntLit:
		p.advance()
		return Expression{Kind: ExprLiteral, Literal: Value{Kind: ValInt, Int: cur.IntVal}}, nil
	case lexer.KindFloatLit:
		p.advance()
		return Expression{Kind: ExprLiteral, Literal: Value{Kind: ValFloat, Float: cur.FloatVal}}, nil
	case lexer.KindBoolLit:
		p.advance()
		return Expression{Kind: ExprLiteral, Literal: Value{Kind: ValBool, Bool: cur.BoolVal}}, nil
	case lexer.KindIdent:
		return p.parsePathOrCall()
	case lexer.KindLParen:
		p.advance()
		expr, err := p.ParseExpression()
		if err != nil {
			return Expression{}, err
		}
		if err := p.expectKind(lexer.KindRParen); err != nil {
			return Expression{}, err
		}
		return expr, nil
	case lexer.KindNot:
		p.advance()
		operand, err := p.parsePrimary()
		if err != nil {
			return Expression{}, err
		}
		return Expression{Kind: ExprLogical, LogicalOp: LogicalNot, Operands: []Expression{operand}}, nil
	default:
		return Expression{}, ipeerr.New(ipeerr.KindParse, fmt.Sprintf("unexpected token: %s", cur.Kind))
	}
}

func (p *Parser) parsePathOrCall() (Expression, error) {
	first, err := p.expectIdent()
	if err != nil {
		return Expression{}, err
	}
	segments := []string{first}

	for p.checkKind(lexer.KindDot) {
		p.advance()
		seg, err := p.expectIdent()
		if err != nil {
			return Expression{}, err
		}
		segments = append(segments, seg)
	}

	if p.checkKind(lexer.KindLParen) {
		if len(segments) > 1 {
			return Expression{}, ipeerr.New(ipeerr.KindParse, "function calls cannot have path segments")
		}
		p.advance()
		var args []Expression
		if !p.checkKind(lexer.KindRParen) {
			for {
				arg, err := p.ParseExpression()
				if err != nil {
					return Expression{}, err
				}
				args = append(args, arg)
				if p.checkKind(lexer.KindComma) {
					p.advance()
					continue
				}
				break
			}
		}
		if err := p.expectKind(lexer.KindRParen); err != nil {
			return Expression{}, err
		}
		return Expression{Kind: ExprCall, CallName: segments[0], CallArgs: args}, nil
	}

	return Expression{Kind: ExprPath, Path: segments}, nil
}

func (p *Parser) parseValue() (Value, error) {
	cur := p.current()

	switch cur.Kind {
	case lexer.KindStringLit:
		p.advance()
		return Value{Kind: ValString, Str: cur.StrVal}, nil
	case lexer.KindIntLit:
		p.advance()
		return Value{Kind: ValInt, Int: cur.IntVal}, nil
	case lexer.KindFloatLit:
		p.advance()
		return Value{Kind: ValFloat, Float: cur.FloatVal}, nil
	case lexer.KindBoolLit:
		p.advance()
		return Value{Kind: ValBool, Bool: cur.BoolVal}, nil
	case lexer.KindIdent:
		p.advance()
		return Value{Kind: ValString, Str: cur.StrVal}, nil
	case lexer.KindLBracket:
		p.advance()
		var values []Value
		if !p.checkKind(lexer.KindRBracket) {
			for {
				v, err := p.parseValue()
				if err != nil {
					return Value{}, err
				}
				values = append(values, v)
				if p.checkKind(lexer.KindComma) {
					p.advance()
					continue
				}
				break
			}
		}
		if err := p.expectKind(lexer.KindRBracket); err != nil {
			return Value{}, err
		}
		return Value{Kind: ValArray, Array: values}, nil
	default:
		return Value{}, ipeerr.New(ipeerr.KindParse, fmt.Sprintf("expected value, got %s", cur.Kind))
	}
}

func (p *Parser) parseComparisonOp() (bytecode.CompOp, bool) {
	switch p.current().Kind {
	case lexer.KindEq:
		return bytecode.OpEq, true
	case lexer.KindNeq:
		return bytecode.OpNeq, true
	case lexer.KindLt:
		return bytecode.OpLt, true
	case lexer.KindGt:
		return bytecode.OpGt, true
	case lexer.KindLtEq:
		return bytecode.OpLtEq, true
	case lexer.KindGtEq:
		return bytecode.OpGtEq, true
	default:
		return 0, false
	}
}

// --- token cursor helpers ---

func (p *Parser) current() lexer.Token { return p.tokens[p.position] }

func (p *Parser) advance() {
	if !p.isAtEnd() {
		p.position++
	}
}

func (p *Parser) isAtEnd() bool { return p.current().Kind == lexer.KindEOF }

func (p *Parser) checkKind(k lexer.Kind) bool {
	return !p.isAtEnd() && p.current().Kind == k
}

func (p *Parser) skipNewlines() {
	for p.checkKind(lexer.KindNewline) {
		p.advance()
	}
}

func (p *Parser) expectKind(expected lexer.Kind) error {
	if p.checkKind(expected) {
		p.advance()
		return nil
	}
	return ipeerr.New(ipeerr.KindParse, fmt.Sprintf("expected %s, got %s", expected, p.current().Kind))
}

func (p *Parser) expectIdent() (string, error) {
	if p.current().Kind == lexer.KindIdent {
		s := p.current().StrVal
		p.advance()
		return s, nil
	}
	return "", ipeerr.New(ipeerr.KindParse, fmt.Sprintf("expected identifier, got %s", p.current().Kind))
}

func (p *Parser) expectString() (string, error) {
	if p.current().Kind == lexer.KindStringLit {
		s := p.current().StrVal
		p.advance()
		return s, nil
	}
	return "", ipeerr.New(ipeerr.KindParse, fmt.Sprintf("expected string literal, got %s", p.current().Kind))
}
