package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/lang/bytecode"
	"github.com/ipe-systems/ipe/internal/lang/compiler"
	"github.com/ipe-systems/ipe/internal/lang/parser"
)

func mustParse(t *testing.T, src string) *parser.Policy {
	t.Helper()
	pol, err := parser.New(src).ParsePolicy()
	require.NoError(t, err)
	return pol
}

func TestCompileSimpleRequires(t *testing.T) {
	pol := mustParse(t, `policy AllowReadProd:
"Allow reading production"
triggers when resource.type == "Deployment"
requires environment == "production"
`)

	cp, err := compiler.Compile(pol)
	require.NoError(t, err)

	assert.NotZero(t, cp.Header.PolicyID)
	assert.Equal(t, "AllowReadProd", cp.Name)
	assert.Equal(t, bytecode.OpReturn, cp.Code[len(cp.Code)-1].Op)
	assert.Len(t, cp.FieldMapping, 1)
}

func TestCompileDenies(t *testing.T) {
	pol := mustParse(t, `policy BlockAll:
"never"
triggers when resource.type == "secret"
denies with reason "too sensitive"
`)

	cp, err := compiler.Compile(pol)
	require.NoError(t, err)
	require.Len(t, cp.Code, 2)
	assert.Equal(t, bytecode.OpLoadConst, cp.Code[0].Op)
	assert.Equal(t, bytecode.OpReturn, cp.Code[1].Op)
	assert.False(t, cp.Constants[cp.Code[0].Const].Bool)
}

func TestCompileStablePolicyID(t *testing.T) {
	pol := mustParse(t, `policy Stable:
"x"
triggers when a == "b"
requires c == "d"
`)

	cp1, err := compiler.Compile(pol)
	require.NoError(t, err)
	cp2, err := compiler.Compile(pol)
	require.NoError(t, err)

	assert.Equal(t, cp1.Header.PolicyID, cp2.Header.PolicyID)
}

func TestCompileDeduplicatesConstantPool(t *testing.T) {
	pol := mustParse(t, `policy Dedup:
"x"
triggers when a == "b"
requires role == "admin" or role == "admin"
`)

	cp, err := compiler.Compile(pol)
	require.NoError(t, err)

	adminCount := 0
	for _, v := range cp.Constants {
		if v.Kind == bytecode.KindString && v.Str == "admin" {
			adminCount++
		}
	}
	assert.Equal(t, 1, adminCount)
}

func TestCompileRejectsAggregate(t *testing.T) {
	pol := mustParse(t, `policy Agg:
"x"
triggers when a == "b"
requires c == "d"
`)
	pol.Requirements.Conditions[0].Expr = parser.Expression{Kind: parser.ExprAggregate}

	_, err := compiler.Compile(pol)
	assert.Error(t, err)
}

func TestCompileRejectsCall(t *testing.T) {
	pol := mustParse(t, `policy Call:
"x"
triggers when a == "b"
requires has_approval(resource.id)
`)
	_, err := compiler.Compile(pol)
	assert.Error(t, err)
}

func TestCompileWhereClauseIsConjoined(t *testing.T) {
	pol := mustParse(t, `policy Where:
"x"
triggers when a == "b"
requires role == "editor" where method == "PUT"
`)

	cp, err := compiler.Compile(pol)
	require.NoError(t, err)
	assert.Len(t, cp.FieldMapping, 2)
}

func TestCompileInExpression(t *testing.T) {
	pol := mustParse(t, `policy InTest:
"x"
triggers when a == "b"
requires role in ["admin", "owner"]
`)

	cp, err := compiler.Compile(pol)
	require.NoError(t, err)
	assert.NotEmpty(t, cp.Code)
}

func TestCompileWithExplicitPolicyID(t *testing.T) {
	pol := mustParse(t, `policy Explicit:
"x"
triggers when a == "b"
requires c == "d"
`)

	cp, err := compiler.Compile(pol, compiler.WithPolicyID(777))
	require.NoError(t, err)
	assert.Equal(t, uint64(777), cp.Header.PolicyID)
}
