// Package typecheck walks a parsed policy's expressions against a shape
// environment, collecting diagnostics without halting on the first one.
package typecheck

import (
	"fmt"

	"github.com/ipe-systems/ipe/internal/lang/parser"
)

// Type is the type-checker's own lattice: String/Int/Float/Bool/Array(elem)/
// Resource(name)/Any. Any is compatible with everything (gradual typing at
// the boundary with evaluation-context field lookups, whose static shape
// this checker does not fully know).
type Type struct {
	Kind     Kind
	Elem     *Type  // only for KindArray
	Resource string // only for KindResource
}

type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindArray
	KindResource
	KindAny
)

func TString() Type   { return Type{Kind: KindString} }
func TInt() Type      { return Type{Kind: KindInt} }
func TFloat() Type    { return Type{Kind: KindFloat} }
func TBool() Type     { return Type{Kind: KindBool} }
func TAny() Type      { return Type{Kind: KindAny} }
func TResource(name string) Type { return Type{Kind: KindResource, Resource: name} }
func TArray(elem Type) Type      { return Type{Kind: KindArray, Elem: &elem} }

func (t Type) String() string {
	switch t.Kind {
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindArray:
		return fmt.Sprintf("Array<%s>", t.Elem)
	case KindResource:
		return fmt.Sprintf("Resource(%s)", t.Resource)
	case KindAny:
		return "Any"
	default:
		return "Unknown"
	}
}

// IsCompatibleWith mirrors the original type-compatibility lattice: Any is
// universally compatible, Int/Float coerce with each other, Array/Resource
// compatibility recurses/matches by name structurally.
func (t Type) IsCompatibleWith(other Type) bool {
	if t.Kind == KindAny || other.Kind == KindAny {
		return true
	}
	switch {
	case t.Kind == KindString && other.Kind == KindString:
		return true
	case t.Kind == KindInt && other.Kind == KindInt:
		return true
	case t.Kind == KindFloat && other.Kind == KindFloat:
		return true
	case t.Kind == KindBool && other.Kind == KindBool:
		return true
	case t.Kind == KindInt && other.Kind == KindFloat, t.Kind == KindFloat && other.Kind == KindInt:
		return true
	case t.Kind == KindArray && other.Kind == KindArray:
		return t.Elem.IsCompatibleWith(*other.Elem)
	case t.Kind == KindResource && other.Kind == KindResource:
		return t.Resource == other.Resource
	default:
		return false
	}
}

// FromLiteral derives a Type from a parsed literal Value, taking the first
// element's type for a non-empty array (mirroring the original checker).
func FromLiteral(v parser.Value) Type {
	switch v.Kind {
	case parser.ValString:
		return TString()
	case parser.ValInt:
		return TInt()
	case parser.ValFloat:
		return TFloat()
	case parser.ValBool:
		return TBool()
	case parser.ValArray:
		if len(v.Array) == 0 {
			return TArray(TAny())
		}
		return TArray(FromLiteral(v.Array[0]))
	default:
		return TAny()
	}
}

// ErrorKind discriminates the diagnostics a Checker collects.
type ErrorKind int

const (
	ErrIncompatibleTypes ErrorKind = iota
	ErrExpectedBool
	ErrUndefinedVariable
	ErrInvalidFieldAccess
	ErrAggregateNotSupported
)

// Error is one collected diagnostic. Checking never stops at the first
// error; callers inspect Errors() once the walk completes.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e Error) Error() string { return e.Message }

// Env binds path roots (resource/action/request/principal, ...) to their
// shape. Standard() seeds the four roots every evaluation context provides.
type Env struct {
	variables map[string]Type
}

func NewEnv() *Env {
	return &Env{variables: make(map[string]Type)}
}

func (e *Env) Bind(name string, t Type) { e.variables[name] = t }

func (e *Env) Lookup(name string) (Type, bool) {
	t, ok := e.variables[name]
	return t, ok
}

// Standard returns the shape environment every policy is checked against:
// resource, action, request, and principal roots, each an opaque Resource
// type (field-level shape is not statically known; LOAD_FIELD failures
// surface at evaluation time per spec.md §7).
func Standard() *Env {
	env := NewEnv()
	env.Bind("resource", TResource("Resource"))
	env.Bind("action", TResource("Action"))
	env.Bind("request", TResource("Request"))
	env.Bind("principal", TResource("Principal"))
	return env
}

// Checker walks expressions against an Env, accumulating Errors.
type Checker struct {
	env    *Env
	errors []Error
}

func New(env *Env) *Checker {
	return &Checker{env: env}
}

func (c *Checker) Errors() []Error { return c.errors }
func (c *Checker) HasErrors() bool { return len(c.errors) > 0 }

func (c *Checker) addError(kind ErrorKind, message string) {
	c.errors = append(c.errors, Error{Kind: kind, Message: message})
}

// CheckPolicy walks every trigger, requirement, and where-clause condition
// in pol, returning the accumulated Checker so callers can inspect errors.
func CheckPolicy(pol *parser.Policy) *Checker {
	c := New(Standard())
	for _, cond := range pol.Triggers {
		c.CheckCondition(cond)
	}
	for _, cond := range pol.Requirements.Conditions {
		c.CheckCondition(cond)
	}
	for _, cond := range pol.Requirements.WhereClause {
		c.CheckCondition(cond)
	}
	return c
}

func (c *Checker) CheckCondition(cond parser.Condition) Type {
	return c.CheckExpression(cond.Expr)
}

// CheckExpression mirrors the original checker's recursive walk: it never
// returns an error itself, only a best-effort Type, recording diagnostics as
// it goes. Aggregate expressions are flagged here (ErrAggregateNotSupported)
// as well as rejected later by the compiler — surfacing the diagnostic at
// type-check time gives callers an earlier, more precise error location.
func (c *Checker) CheckExpression(expr parser.Expression) Type {
	switch expr.Kind {
	case parser.ExprLiteral:
		return FromLiteral(expr.Literal)

	case parser.ExprPath:
		root, ok := expr.Path[0], len(expr.Path) > 0
		if !ok {
			return TAny()
		}
		if t, found := c.env.Lookup(root); found {
			return t
		}
		c.addError(ErrUndefinedVariable, fmt.Sprintf("undefined variable: %s", root))
		return TAny()

	case parser.ExprBinary:
		left := c.CheckExpression(*expr.Left)
		right := c.CheckExpression(*expr.Right)
		if !left.IsCompatibleWith(right) {
			c.addError(ErrIncompatibleTypes, fmt.Sprintf("incompatible types: %s vs %s", left, right))
		}
		return TBool()

	case parser.ExprLogical:
		for _, operand := range expr.Operands {
			t := c.CheckExpression(operand)
			if t.Kind != KindBool && t.Kind != KindAny {
				c.addError(ErrExpectedBool, fmt.Sprintf("expected bool operand, got %s", t))
			}
		}
		return TBool()

	case parser.ExprIn:
		c.CheckExpression(expr.InExpr)
		return TBool()

	case parser.ExprAggregate:
		c.addError(ErrAggregateNotSupported, "aggregate expressions are not supported")
		return TInt()

	case parser.ExprCall:
		for _, arg := range expr.CallArgs {
			c.CheckExpression(arg)
		}
		return TAny()

	default:
		return TAny()
	}
}
