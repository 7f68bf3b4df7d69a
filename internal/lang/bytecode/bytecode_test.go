package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/lang/bytecode"
)

func TestValueIsTruthy(t *testing.T) {
	assert.True(t, bytecode.BoolVal(true).IsTruthy())
	assert.False(t, bytecode.BoolVal(false).IsTruthy())
	assert.True(t, bytecode.Int64(1).IsTruthy())
	assert.False(t, bytecode.Int64(0).IsTruthy())
	assert.True(t, bytecode.String("x").IsTruthy())
	assert.False(t, bytecode.String("").IsTruthy())
	assert.True(t, bytecode.Array([]bytecode.Value{bytecode.Int64(1)}).IsTruthy())
	assert.False(t, bytecode.Array(nil).IsTruthy())
}

func TestCompareNumericCoercion(t *testing.T) {
	ok, err := bytecode.Compare(bytecode.Int64(3), bytecode.Float64(3.0), bytecode.OpEq)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bytecode.Compare(bytecode.Float64(2.5), bytecode.Int64(2), bytecode.OpGt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompareStringAndBool(t *testing.T) {
	ok, err := bytecode.Compare(bytecode.String("a"), bytecode.String("b"), bytecode.OpLt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bytecode.Compare(bytecode.BoolVal(true), bytecode.BoolVal(true), bytecode.OpEq)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bytecode.Compare(bytecode.BoolVal(true), bytecode.BoolVal(false), bytecode.OpLt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareKindMismatch(t *testing.T) {
	_, err := bytecode.Compare(bytecode.String("x"), bytecode.Int64(1), bytecode.OpEq)
	assert.Error(t, err)
}

func TestConstantPoolDeduplicates(t *testing.T) {
	p := bytecode.NewCompiledPolicy(1, "dedup-test")
	i1 := p.AddConstant(bytecode.String("admin"))
	i2 := p.AddConstant(bytecode.String("admin"))
	i3 := p.AddConstant(bytecode.String("guest"))

	assert.Equal(t, i1, i2)
	assert.NotEqual(t, i1, i3)
	assert.Len(t, p.Constants, 2)
}

func TestWireRoundTrip(t *testing.T) {
	p := bytecode.NewCompiledPolicy(42, "round-trip-test")
	c := p.AddConstant(bytecode.String("approved"))
	p.FieldMapping[0] = []string{"request", "principal", "id"}
	p.Emit(bytecode.Instruction{Op: bytecode.OpLoadField, Field: 0})
	p.Emit(bytecode.Instruction{Op: bytecode.OpLoadConst, Const: c})
	p.Emit(bytecode.Instruction{Op: bytecode.OpCompare, Comp: bytecode.OpEq})
	p.Emit(bytecode.Instruction{Op: bytecode.OpReturn})

	data, err := p.ToBytes()
	require.NoError(t, err)

	decoded, err := bytecode.FromBytes(data)
	require.NoError(t, err)

	assert.Equal(t, p.Header.PolicyID, decoded.Header.PolicyID)
	assert.Equal(t, p.Name, decoded.Name)
	assert.Equal(t, p.Code, decoded.Code)
	assert.Equal(t, p.Constants, decoded.Constants)
	assert.Equal(t, p.FieldMapping, decoded.FieldMapping)
}

func TestFromBytesRejectsBadMagic(t *testing.T) {
	_, err := bytecode.FromBytes([]byte{0, 0, 0, 0, 1, 0, 0, 0})
	assert.Error(t, err)
}
