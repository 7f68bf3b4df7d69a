// Package parser builds an AST from IPE policy source via recursive-descent
// parsing over the lexer's token stream.
package parser

import "github.com/ipe-systems/ipe/internal/lang/bytecode"

// SourceLocation pins an AST node to the source text that produced it.
type SourceLocation struct {
	Line   int
	Column int
	Length int
}

// Policy is a complete parsed policy definition.
type Policy struct {
	Name         string
	Intent       string
	Triggers     []Condition
	Requirements Requirements
	Metadata     *Metadata
	Location     SourceLocation
}

// RequirementsKind discriminates the two shapes Requirements can take.
type RequirementsKind int

const (
	RequirementsKindRequires RequirementsKind = iota
	RequirementsKindDenies
)

// Requirements is either a "requires" clause (with an optional "where"
// refinement) or a "denies" clause (with an optional reason string).
type Requirements struct {
	Kind         RequirementsKind
	Conditions   []Condition
	WhereClause  []Condition
	HasWhere     bool
	DenyReason   string
	HasDenyReason bool
}

// Condition wraps a single boolean expression with its source position.
type Condition struct {
	Expr     Expression
	Location SourceLocation
}

// ExpressionKind discriminates the Expression union.
type ExpressionKind int

const (
	ExprLiteral ExpressionKind = iota
	ExprPath
	ExprBinary
	ExprLogical
	ExprIn
	ExprAggregate
	ExprCall
)

// LogicalOp is the operator for a Logical expression node.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
	LogicalNot
)

// AggregateFunc enumerates the aggregate functions an Aggregate expression
// can carry. The compiler rejects every Aggregate expression at compile time
// (see spec.md §9 Open Questions, decided in DESIGN.md) and the type checker
// flags one with ErrAggregateNotSupported. The parser has no syntax that
// produces an Aggregate node, so one only appears in an AST built in code.
type AggregateFunc int

const (
	AggregateCount AggregateFunc = iota
	AggregateAny
	AggregateAll
	AggregateSum
	AggregateMax
	AggregateMin
)

// Expression is the tagged union of expression forms the grammar produces.
type Expression struct {
	Kind ExpressionKind

	// ExprLiteral
	Literal Value

	// ExprPath
	Path []string

	// ExprBinary
	Left  *Expression
	Comp  bytecode.CompOp
	Right *Expression

	// ExprLogical
	LogicalOp LogicalOp
	Operands  []Expression

	// ExprIn
	InExpr Expression
	InList []Value

	// ExprAggregate
	AggPath Path
	AggFunc AggregateFunc
	AggCond *Condition

	// ExprCall
	CallName string
	CallArgs []Expression

	Location SourceLocation
}

// Path is a dot-separated attribute path, e.g. request.principal.id.
type Path struct {
	Segments []string
}

func (p Path) Root() (string, bool) {
	if len(p.Segments) == 0 {
		return "", false
	}
	return p.Segments[0], true
}

func (p Path) IsSimple() bool { return len(p.Segments) == 1 }

// ValueKind discriminates the AST literal Value union (distinct from
// bytecode.Value: this is pre-constant-pool source-level form).
type ValueKind int

const (
	ValString ValueKind = iota
	ValInt
	ValFloat
	ValBool
	ValArray
)

type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Array []Value
}

func (v Value) TypeName() string {
	switch v.Kind {
	case ValString:
		return "String"
	case ValInt:
		return "Int"
	case ValFloat:
		return "Float"
	case ValBool:
		return "Bool"
	case ValArray:
		return "Array"
	default:
		return "Unknown"
	}
}

// Metadata is the optional trailing `metadata:` block of key/value pairs.
type Metadata struct {
	Fields []MetadataField
}

type MetadataField struct {
	Key   string
	Value Value
}

func (m *Metadata) Get(key string) (Value, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}
