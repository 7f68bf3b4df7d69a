// Package compiler lowers a parsed Policy AST into stack-based bytecode:
// constant pool deduplication, a compile-time field-path dictionary, and
// Jump/JumpIfFalse skeletons for short-circuiting and/or.
package compiler

import (
	"github.com/google/uuid"

	"github.com/cespare/xxhash/v2"

	"github.com/ipe-systems/ipe/internal/domain/ipeerr"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
	"github.com/ipe-systems/ipe/internal/lang/parser"
)

// Option configures Compile.
type Option func(*options)

type options struct {
	policyID uint64
}

// WithPolicyID pins the compiled policy's id instead of deriving one from
// the policy name via uuid/xxhash.
func WithPolicyID(id uint64) Option {
	return func(o *options) { o.policyID = id }
}

// Compile lowers pol into a *bytecode.CompiledPolicy. Aggregate expressions
// are rejected with a CompileError (spec.md §9 Open Question, decided in
// DESIGN.md: option (a), reject at compile time); Call expressions are never
// emitted by this compiler regardless of input — any Call node present in
// the AST also yields a CompileError, since spec.md §9 leaves Call
// semantics deliberately unimplemented rather than inventing a builtin
// registry.
func Compile(pol *parser.Policy, opts ...Option) (*bytecode.CompiledPolicy, error) {
	cfg := options{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.policyID == 0 {
		cfg.policyID = derivePolicyID(pol.Name)
	}

	cp := bytecode.NewCompiledPolicy(cfg.policyID, pol.Name)
	c := &compiling{policy: cp, fieldIndex: make(map[string]uint16)}

	// triggers are evaluated by the store's index, not by this policy's own
	// bytecode; only requirements (plus an optional where refinement) and
	// denies compile into the executable body.
	switch pol.Requirements.Kind {
	case parser.RequirementsKindDenies:
		if err := c.compileDenies(); err != nil {
			return nil, err
		}
	case parser.RequirementsKindRequires:
		if err := c.compileRequires(pol.Requirements); err != nil {
			return nil, err
		}
	default:
		return nil, ipeerr.New(ipeerr.KindCompile, "policy has neither requires nor denies")
	}

	return cp, nil
}

func derivePolicyID(name string) uint64 {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	return xxhash.Sum64(u[:])
}

// compiling holds the mutable state threaded through one Compile call.
type compiling struct {
	policy     *bytecode.CompiledPolicy
	fieldIndex map[string]uint16
}

func (c *compiling) compileDenies() error {
	// Denies lowers to an unconditional Return false; the reason is carried
	// as policy metadata by the caller (PolicyEntry), not in the bytecode.
	falseIdx := c.policy.AddConstant(bytecode.BoolVal(false))
	c.policy.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Const: falseIdx})
	c.policy.Emit(bytecode.Instruction{Op: bytecode.OpReturn})
	return nil
}

func (c *compiling) compileRequires(req parser.Requirements) error {
	conds := conjoin(req.Conditions)
	if req.HasWhere {
		conds = parser.Expression{
			Kind:      parser.ExprLogical,
			LogicalOp: parser.LogicalAnd,
			Operands:  []parser.Expression{conds, conjoin(req.WhereClause)},
		}
	}
	if err := c.compileExpr(conds); err != nil {
		return err
	}
	c.policy.Emit(bytecode.Instruction{Op: bytecode.OpReturn})
	return nil
}

// conjoin folds a list of conditions into a single AND expression; a single
// condition passes through unchanged.
func conjoin(conds []parser.Condition) parser.Expression {
	if len(conds) == 1 {
		return conds[0].Expr
	}
	operands := make([]parser.Expression, len(conds))
	for i, c := range conds {
		operands[i] = c.Expr
	}
	return parser.Expression{Kind: parser.ExprLogical, LogicalOp: parser.LogicalAnd, Operands: operands}
}

// compileExpr emits post-order bytecode leaving exactly one boolean value on
// the stack.
func (c *compiling) compileExpr(expr parser.Expression) error {
	switch expr.Kind {
	case parser.ExprLiteral:
		return c.compileLiteral(expr.Literal)

	case parser.ExprPath:
		return c.compileLoadPath(expr.Path)

	case parser.ExprBinary:
		if err := c.compileExpr(*expr.Left); err != nil {
			return err
		}
		if err := c.compileExpr(*expr.Right); err != nil {
			return err
		}
		c.policy.Emit(bytecode.Instruction{Op: bytecode.OpCompare, Comp: expr.Comp})
		return nil

	case parser.ExprLogical:
		return c.compileLogical(expr)

	case parser.ExprIn:
		return c.compileIn(expr)

	case parser.ExprAggregate:
		return ipeerr.New(ipeerr.KindCompile, "aggregate expressions are not supported")

	case parser.ExprCall:
		return ipeerr.New(ipeerr.KindCompile, "function calls are not supported by the compiler")

	default:
		return ipeerr.New(ipeerr.KindCompile, "unknown expression kind")
	}
}

func (c *compiling) compileLiteral(v parser.Value) error {
	val, err := toBytecodeValue(v)
	if err != nil {
		return err
	}
	idx := c.policy.AddConstant(val)
	c.policy.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Const: idx})
	return nil
}

func toBytecodeValue(v parser.Value) (bytecode.Value, error) {
	switch v.Kind {
	case parser.ValString:
		return bytecode.String(v.Str), nil
	case parser.ValInt:
		return bytecode.Int64(v.Int), nil
	case parser.ValFloat:
		return bytecode.Float64(v.Float), nil
	case parser.ValBool:
		return bytecode.BoolVal(v.Bool), nil
	case parser.ValArray:
		elems := make([]bytecode.Value, len(v.Array))
		for i, e := range v.Array {
			bv, err := toBytecodeValue(e)
			if err != nil {
				return bytecode.Value{}, err
			}
			elems[i] = bv
		}
		return bytecode.Array(elems), nil
	default:
		return bytecode.Value{}, ipeerr.New(ipeerr.KindCompile, "unknown literal kind")
	}
}

func (c *compiling) compileLoadPath(path []string) error {
	key := pathKey(path)
	offset, ok := c.fieldIndex[key]
	if !ok {
		offset = uint16(len(c.fieldIndex))
		c.fieldIndex[key] = offset
		c.policy.FieldMapping[offset] = append([]string(nil), path...)
	}
	c.policy.Emit(bytecode.Instruction{Op: bytecode.OpLoadField, Field: offset})
	return nil
}

func pathKey(path []string) string {
	key := ""
	for i, seg := range path {
		if i > 0 {
			key += "."
		}
		key += seg
	}
	return key
}

// compileLogical lowers and/or to a short-circuiting Jump/JumpIfFalse
// skeleton and not to a NOT over the operand's boolean top-of-stack.
func (c *compiling) compileLogical(expr parser.Expression) error {
	switch expr.LogicalOp {
	case parser.LogicalNot:
		if err := c.compileExpr(expr.Operands[0]); err != nil {
			return err
		}
		c.policy.Emit(bytecode.Instruction{Op: bytecode.OpNot})
		return nil

	case parser.LogicalAnd:
		return c.compileShortCircuit(expr.Operands, true)

	case parser.LogicalOr:
		return c.compileShortCircuit(expr.Operands, false)

	default:
		return ipeerr.New(ipeerr.KindCompile, "unknown logical operator")
	}
}

// compileShortCircuit emits, for AND, each operand followed by a
// JumpIfFalse to a shared "false" landing pad, and builds OR on top of that
// via De Morgan, so the interpreter only needs JUMP/JUMP_IF_FALSE (no
// separate "jump if true").
//
// AND a,b,c:
//
//	a; JumpIfFalse L_false
//	b; JumpIfFalse L_false
//	c; JumpIfFalse L_false
//	LoadConst true; Jump L_end
//	L_false: LoadConst false
//	L_end:
//
// OR a,b,c is compiled as NOT(AND(NOT a, NOT b, NOT c)) pushed inline, which
// keeps the instruction set minimal at the cost of an extra NOT per operand;
// this matches spec.md §4.4's instruction budget (no OP_OR is introduced).
func (c *compiling) compileShortCircuit(operands []parser.Expression, isAnd bool) error {
	if isAnd {
		var falseJumps []int
		for _, operand := range operands {
			if err := c.compileExpr(operand); err != nil {
				return err
			}
			idx := c.policy.Emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse})
			falseJumps = append(falseJumps, idx)
		}
		trueIdx := c.policy.AddConstant(bytecode.BoolVal(true))
		c.policy.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Const: trueIdx})
		endJump := c.policy.Emit(bytecode.Instruction{Op: bytecode.OpJump})

		falseLanding := len(c.policy.Code)
		falseIdx := c.policy.AddConstant(bytecode.BoolVal(false))
		c.policy.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Const: falseIdx})

		for _, j := range falseJumps {
			c.policy.Code[j].Target = uint32(falseLanding)
		}
		endLanding := len(c.policy.Code)
		c.policy.Code[endJump].Target = uint32(endLanding)
		return nil
	}

	// OR: De Morgan via NOT(AND(NOT operands...)), then NOT the whole thing.
	negated := make([]parser.Expression, len(operands))
	for i, operand := range operands {
		negated[i] = parser.Expression{Kind: parser.ExprLogical, LogicalOp: parser.LogicalNot, Operands: []parser.Expression{operand}}
	}
	if err := c.compileShortCircuit(negated, true); err != nil {
		return err
	}
	c.policy.Emit(bytecode.Instruction{Op: bytecode.OpNot})
	return nil
}

// compileIn lowers `expr in [v1, v2, ...]` to a chain of equality
// comparisons folded with OR: (expr == v1) or (expr == v2) or ...
func (c *compiling) compileIn(expr parser.Expression) error {
	if len(expr.InList) == 0 {
		falseIdx := c.policy.AddConstant(bytecode.BoolVal(false))
		c.policy.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Const: falseIdx})
		return nil
	}

	operands := make([]parser.Expression, len(expr.InList))
	for i, v := range expr.InList {
		operands[i] = parser.Expression{
			Kind: parser.ExprBinary,
			Left: &expr.InExpr,
			Comp: compEq(),
			Right: &parser.Expression{Kind: parser.ExprLiteral, Literal: v},
		}
	}
	return c.compileLogical(parser.Expression{Kind: parser.ExprLogical, LogicalOp: parser.LogicalOr, Operands: operands})
}

func compEq() (op bytecode.CompOp) { return bytecode.OpEq }
