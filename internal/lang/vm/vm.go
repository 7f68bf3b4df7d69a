// Package vm implements the stack-based interpreter that executes compiled
// policy bytecode against an evaluation context.
package vm

import (
	"fmt"

	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
)

// DefaultMaxStackSize is the operand stack's default hard cap (spec.md
// §4.5). Exceeding it is a fatal EvaluationError, not a panic.
const DefaultMaxStackSize = 1024

// stack is the bounded operand stack.
type stack struct {
	values  []bytecode.Value
	maxSize int
}

func newStack(maxSize int) *stack {
	return &stack{maxSize: maxSize}
}

func (s *stack) push(v bytecode.Value) error {
	if len(s.values) >= s.maxSize {
		return ipeerr.New(ipeerr.KindEvaluation, "stack overflow")
	}
	s.values = append(s.values, v)
	return nil
}

func (s *stack) pop() (bytecode.Value, error) {
	if len(s.values) == 0 {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "stack underflow")
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

// Interpreter executes a single CompiledPolicy's instruction stream.
type Interpreter struct {
	maxStackSize int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxStackSize overrides DefaultMaxStackSize.
func WithMaxStackSize(n int) Option {
	return func(i *Interpreter) { i.maxStackSize = n }
}

// New builds an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{maxStackSize: DefaultMaxStackSize}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Evaluate runs policy's bytecode against ctx. If execution falls off the
// end of the code without reaching a Return, the verdict defaults to deny
// (spec.md §4.5, §8 property 3).
func (in *Interpreter) Evaluate(policy *bytecode.CompiledPolicy, ctx *evalctx.EvaluationContext) (bool, error) {
	st := newStack(in.maxStackSize)
	pc := 0
	code := policy.Code

	for pc < len(code) {
		instr := code[pc]

		switch instr.Op {
		case bytecode.OpLoadField:
			v, err := loadField(policy, instr.Field, ctx)
			if err != nil {
				return false, err
			}
			if err := st.push(v); err != nil {
				return false, err
			}
			pc++

		case bytecode.OpLoadConst:
			if int(instr.Const) >= len(policy.Constants) {
				return false, ipeerr.New(ipeerr.KindEvaluation, "constant index out of range")
			}
			if err := st.push(policy.Constants[instr.Const]); err != nil {
				return false, err
			}
			pc++

		case bytecode.OpCompare:
			right, err := st.pop()
			if err != nil {
				return false, err
			}
			left, err := st.pop()
			if err != nil {
				return false, err
			}
			result, err := bytecode.Compare(left, right, instr.Comp)
			if err != nil {
				return false, ipeerr.Wrap(ipeerr.KindEvaluation, "compare failed", err)
			}
			if err := st.push(bytecode.BoolVal(result)); err != nil {
				return false, err
			}
			pc++

		case bytecode.OpAnd:
			right, err := st.pop()
			if err != nil {
				return false, err
			}
			left, err := st.pop()
			if err != nil {
				return false, err
			}
			if err := st.push(bytecode.BoolVal(left.IsTruthy() && right.IsTruthy())); err != nil {
				return false, err
			}
			pc++

		case bytecode.OpOr:
			right, err := st.pop()
			if err != nil {
				return false, err
			}
			left, err := st.pop()
			if err != nil {
				return false, err
			}
			if err := st.push(bytecode.BoolVal(left.IsTruthy() || right.IsTruthy())); err != nil {
				return false, err
			}
			pc++

		case bytecode.OpNot:
			v, err := st.pop()
			if err != nil {
				return false, err
			}
			if err := st.push(bytecode.BoolVal(!v.IsTruthy())); err != nil {
				return false, err
			}
			pc++

		case bytecode.OpReturn:
			v, err := st.pop()
			if err != nil {
				return false, err
			}
			return v.IsTruthy(), nil

		case bytecode.OpJump:
			pc = int(instr.Target)

		case bytecode.OpJumpIfFalse:
			v, err := st.pop()
			if err != nil {
				return false, err
			}
			if !v.IsTruthy() {
				pc = int(instr.Target)
			} else {
				pc++
			}

		case bytecode.OpCall:
			// Reserved, never emitted by the compiler (spec.md §9 Open
			// Question); reachable only via hand-crafted bytecode.
			return false, ipeerr.New(ipeerr.KindEvaluation, "call opcode is not supported")

		default:
			return false, ipeerr.New(ipeerr.KindEvaluation, fmt.Sprintf("unknown opcode %v", instr.Op))
		}
	}

	// Fell off the end without a Return: deny by default.
	return false, nil
}

// loadField walks the path recorded in policy.FieldMapping for offset
// against ctx, converting the context-side AttributeValue to a
// bytecode.Value. See spec.md §4.5 for the per-root semantics.
func loadField(policy *bytecode.CompiledPolicy, offset uint16, ctx *evalctx.EvaluationContext) (bytecode.Value, error) {
	path, ok := policy.FieldMapping[offset]
	if !ok || len(path) == 0 {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, fmt.Sprintf("unknown field offset %d", offset))
	}

	root := path[0]
	rest := path[1:]

	switch root {
	case "resource":
		return accessResource(ctx, rest)
	case "action":
		return accessAction(ctx, rest)
	case "request":
		return accessRequest(ctx, rest)
	default:
		// Bare single-segment roots not in {resource, action, request} are
		// treated as implicit resource attributes for ergonomics (e.g. a
		// trigger condition written as `environment == "production"`).
		return attrLookup(ctx.Resource.Attributes, root)
	}
}

func accessResource(ctx *evalctx.EvaluationContext, rest []string) (bytecode.Value, error) {
	if len(rest) == 0 {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty resource path")
	}
	if rest[0] == "type" {
		return bytecode.Int64(ctx.Resource.TypeID), nil
	}
	return attrLookup(ctx.Resource.Attributes, rest[0])
}

func accessAction(ctx *evalctx.EvaluationContext, rest []string) (bytecode.Value, error) {
	if len(rest) == 0 {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty action path")
	}
	return attrLookup(ctx.Action.Attributes, rest[0])
}

func accessRequest(ctx *evalctx.EvaluationContext, rest []string) (bytecode.Value, error) {
	if len(rest) == 0 {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty request path")
	}
	if rest[0] == "principal" {
		return accessPrincipal(ctx, rest[1:])
	}
	return attrLookup(ctx.Request.Metadata, rest[0])
}

func accessPrincipal(ctx *evalctx.EvaluationContext, rest []string) (bytecode.Value, error) {
	if len(rest) == 0 {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, "empty principal path")
	}
	if rest[0] == "id" {
		return bytecode.String(ctx.Request.Principal.ID), nil
	}
	return attrLookup(ctx.Request.Principal.Attributes, rest[0])
}

func attrLookup(attrs map[string]evalctx.AttributeValue, key string) (bytecode.Value, error) {
	v, ok := attrs[key]
	if !ok {
		return bytecode.Value{}, ipeerr.New(ipeerr.KindEvaluation, fmt.Sprintf("missing field: %s", key))
	}
	return v.ToValue(), nil
}
