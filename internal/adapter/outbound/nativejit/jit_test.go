package nativejit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/nativejit"
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

func TestJITAgreesWithInterpreter(t *testing.T) {
	cases := []string{
		`policy A:
"x"
triggers when a == "b"
requires environment == "production"
`,
		`policy B:
"x"
triggers when a == "b"
requires environment == "production" and method == "GET"
`,
		`policy C:
"x"
triggers when a == "b"
requires environment == "staging" or method == "GET"
`,
		`policy D:
"x"
triggers when a == "b"
requires role in ["admin", "owner"]
`,
		`policy E:
"x"
triggers when a == "b"
denies with reason "never"
`,
	}

	ctx := evalctx.New(
		evalctx.Resource{
			TypeID: 3,
			Attributes: map[string]evalctx.AttributeValue{
				"environment": evalctx.FromValue(bytecode.String("production")),
				"role":        evalctx.FromValue(bytecode.String("owner")),
			},
		},
		evalctx.Action{
			Operation:  "read",
			Attributes: map[string]evalctx.AttributeValue{"method": evalctx.FromValue(bytecode.String("GET"))},
		},
		evalctx.Request{Principal: evalctx.Principal{ID: "alice"}},
	)

	interp := vm.New()
	jit := nativejit.New()

	for i, src := range cases {
		cp := compileSrc(t, src)

		wantResult, wantErr := interp.Evaluate(cp, ctx)

		exe, err := jit.Compile(cp.Name, cp)
		require.NoError(t, err)
		gotResult, gotErr := exe.Execute(ctx)

		if wantErr != nil {
			assert.Error(t, gotErr, "case %d", i)
		} else {
			require.NoError(t, gotErr, "case %d", i)
			assert.Equal(t, wantResult, gotResult, "case %d", i)
		}
	}
}

func TestJITCachesByName(t *testing.T) {
	cp := compileSrc(t, `policy Cached:
"x"
triggers when a == "b"
requires environment == "production"
`)

	jit := nativejit.New()
	exe1, err := jit.Compile(cp.Name, cp)
	require.NoError(t, err)
	exe2, err := jit.Compile(cp.Name, cp)
	require.NoError(t, err)

	assert.Same(t, exe1, exe2)
}

func TestJITCallOpcodeIsError(t *testing.T) {
	cp := bytecode.NewCompiledPolicy(1, "CallPolicy")
	cp.Emit(bytecode.Instruction{Op: bytecode.OpCall})

	jit := nativejit.New()
	exe, err := jit.Compile(cp.Name, cp)
	require.NoError(t, err)

	_, err = exe.Execute(evalctx.New(evalctx.Resource{}, evalctx.Action{}, evalctx.Request{}))
	assert.Error(t, err)
}
