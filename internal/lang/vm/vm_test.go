package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
	"github.com/ipe-systems/ipe/internal/lang/compiler"
	"github.com/ipe-systems/ipe/internal/lang/parser"
	"github.com/ipe-systems/ipe/internal/lang/vm"
)

func compileSrc(t *testing.T, src string) *bytecode.CompiledPolicy {
	t.Helper()
	pol, err := parser.New(src).ParsePolicy()
	require.NoError(t, err)
	cp, err := compiler.Compile(pol)
	require.NoError(t, err)
	return cp
}

func baseContext() *evalctx.EvaluationContext {
	return evalctx.New(
		evalctx.Resource{
			TypeID: 7,
			Attributes: map[string]evalctx.AttributeValue{
				"environment": evalctx.FromValue(bytecode.String("production")),
			},
		},
		evalctx.Action{
			Operation: "read",
			Attributes: map[string]evalctx.AttributeValue{
				"method": evalctx.FromValue(bytecode.String("GET")),
			},
		},
		evalctx.Request{
			Principal: evalctx.Principal{ID: "alice"},
		},
	)
}

func TestEvaluateAllowsWhenConditionTrue(t *testing.T) {
	cp := compileSrc(t, `policy Allow:
"x"
triggers when resource.type == "7"
requires environment == "production"
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateDeniesWhenConditionFalse(t *testing.T) {
	cp := compileSrc(t, `policy Deny:
"x"
triggers when a == "b"
requires environment == "staging"
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateDeniesPolicy(t *testing.T) {
	cp := compileSrc(t, `policy BlockAll:
"x"
triggers when a == "b"
denies with reason "no"
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateAndShortCircuit(t *testing.T) {
	cp := compileSrc(t, `policy AndCheck:
"x"
triggers when a == "b"
requires environment == "production" and action.method == "GET"
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateOrShortCircuit(t *testing.T) {
	cp := compileSrc(t, `policy OrCheck:
"x"
triggers when a == "b"
requires environment == "staging" or action.method == "GET"
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateInExpression(t *testing.T) {
	cp := compileSrc(t, `policy InCheck:
"x"
triggers when a == "b"
requires environment in ["production", "staging"]
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateMissingFieldIsError(t *testing.T) {
	cp := compileSrc(t, `policy Missing:
"x"
triggers when a == "b"
requires nonexistent == "x"
`)

	_, err := vm.New().Evaluate(cp, baseContext())
	assert.Error(t, err)
}

func TestEvaluatePrincipalID(t *testing.T) {
	cp := compileSrc(t, `policy PrincipalCheck:
"x"
triggers when a == "b"
requires request.principal.id == "alice"
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateResourceType(t *testing.T) {
	cp := compileSrc(t, `policy TypeCheck:
"x"
triggers when a == "b"
requires resource.type == 7
`)

	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluateFallsOffEndDeniesByDefault(t *testing.T) {
	cp := bytecode.NewCompiledPolicy(1, "Empty")
	result, err := vm.New().Evaluate(cp, baseContext())
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluateStackOverflowIsError(t *testing.T) {
	cp := bytecode.NewCompiledPolicy(1, "Overflow")
	idx := cp.AddConstant(bytecode.BoolVal(true))
	for i := 0; i < 10; i++ {
		cp.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Const: idx})
	}
	cp.Emit(bytecode.Instruction{Op: bytecode.OpReturn})

	_, err := vm.New(vm.WithMaxStackSize(2)).Evaluate(cp, baseContext())
	assert.Error(t, err)
}

func TestEvaluateCallOpcodeIsError(t *testing.T) {
	cp := bytecode.NewCompiledPolicy(1, "CallPolicy")
	cp.Emit(bytecode.Instruction{Op: bytecode.OpCall})

	_, err := vm.New().Evaluate(cp, baseContext())
	assert.Error(t, err)
}
