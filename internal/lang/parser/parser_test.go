package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/lang/bytecode"
	"github.com/ipe-systems/ipe/internal/lang/parser"
)

const simplePolicy = `policy AllowAdmins:
"Admins may always approve"
triggers when resource.type == "approval"
requires principal.role == "admin"
`

func TestParseSimplePolicy(t *testing.T) {
	p := parser.New(simplePolicy)
	pol, err := p.ParsePolicy()
	require.NoError(t, err)

	assert.Equal(t, "AllowAdmins", pol.Name)
	assert.Equal(t, "Admins may always approve", pol.Intent)
	require.Len(t, pol.Triggers, 1)
	assert.Equal(t, parser.ExprBinary, pol.Triggers[0].Expr.Kind)
	assert.Equal(t, parser.RequirementsKindRequires, pol.Requirements.Kind)
	require.Len(t, pol.Requirements.Conditions, 1)
}

func TestParseDeniesWithReason(t *testing.T) {
	src := `policy BlockAll:
"never allowed"
triggers when resource.type == "secret"
denies with reason "too sensitive"
`
	pol, err := parser.New(src).ParsePolicy()
	require.NoError(t, err)
	assert.Equal(t, parser.RequirementsKindDenies, pol.Requirements.Kind)
	assert.True(t, pol.Requirements.HasDenyReason)
	assert.Equal(t, "too sensitive", pol.Requirements.DenyReason)
}

func TestParseWhereClause(t *testing.T) {
	src := `policy Conditional:
"x"
triggers when resource.type == "doc"
requires principal.role == "editor" where request.method == "PUT"
`
	pol, err := parser.New(src).ParsePolicy()
	require.NoError(t, err)
	assert.True(t, pol.Requirements.HasWhere)
	require.Len(t, pol.Requirements.WhereClause, 1)
}

func TestParseInExpression(t *testing.T) {
	src := `principal.role in ["admin", "owner"]`
	expr, err := parser.New(src).ParseExpression()
	require.NoError(t, err)
	assert.Equal(t, parser.ExprIn, expr.Kind)
	assert.Len(t, expr.InList, 2)
}

func TestParseLogicalPrecedence(t *testing.T) {
	src := `a == "x" and b == "y" or c == "z"`
	expr, err := parser.New(src).ParseExpression()
	require.NoError(t, err)
	// top-level should be OR of (AND of two comparisons) and comparison
	assert.Equal(t, parser.ExprLogical, expr.Kind)
	assert.Equal(t, parser.LogicalOr, expr.LogicalOp)
}

func TestParseNot(t *testing.T) {
	expr, err := parser.New(`not principal.banned`).ParseExpression()
	require.NoError(t, err)
	assert.Equal(t, parser.ExprLogical, expr.Kind)
	assert.Equal(t, parser.LogicalNot, expr.LogicalOp)
}

func TestParseFunctionCall(t *testing.T) {
	expr, err := parser.New(`has_approval(resource.id)`).ParseExpression()
	require.NoError(t, err)
	assert.Equal(t, parser.ExprCall, expr.Kind)
	assert.Equal(t, "has_approval", expr.CallName)
	require.Len(t, expr.CallArgs, 1)
}

func TestParsePathCannotHaveCallSegments(t *testing.T) {
	_, err := parser.New(`a.b(1)`).ParseExpression()
	assert.Error(t, err)
}

func TestParseComparisonOperators(t *testing.T) {
	cases := map[string]bytecode.CompOp{
		`a == 1`: bytecode.OpEq,
		`a != 1`: bytecode.OpNeq,
		`a < 1`:  bytecode.OpLt,
		`a > 1`:  bytecode.OpGt,
		`a <= 1`: bytecode.OpLtEq,
		`a >= 1`: bytecode.OpGtEq,
	}
	for src, op := range cases {
		expr, err := parser.New(src).ParseExpression()
		require.NoError(t, err)
		require.Equal(t, parser.ExprBinary, expr.Kind)
		assert.Equal(t, op, expr.Comp)
	}
}

func TestParseMetadataBlock(t *testing.T) {
	src := `policy WithMeta:
"x"
triggers when a == "b"
requires c == "d"
metadata
  severity: "high"
  owner: "platform"
`
	pol, err := parser.New(src).ParsePolicy()
	require.NoError(t, err)
	require.NotNil(t, pol.Metadata)
	v, ok := pol.Metadata.Get("severity")
	require.True(t, ok)
	assert.Equal(t, "high", v.Str)
}

func TestParseMissingRequirementsIsError(t *testing.T) {
	src := `policy Bad:
"x"
triggers when a == "b"
`
	_, err := parser.New(src).ParsePolicy()
	assert.Error(t, err)
}
