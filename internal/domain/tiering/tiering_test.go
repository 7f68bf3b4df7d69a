package tiering_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/domain/tiering"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
)

func TestProfileStatsAvgLatency(t *testing.T) {
	stats := tiering.NewProfileStats()
	stats.RecordEvaluation(10 * time.Microsecond)
	stats.RecordEvaluation(20 * time.Microsecond)
	stats.RecordEvaluation(30 * time.Microsecond)

	assert.EqualValues(t, 20_000, stats.AvgLatencyNs())
	assert.EqualValues(t, 3, stats.EvalCount())
}

func TestProfileStatsNoPromotionBeforeThreshold(t *testing.T) {
	stats := tiering.NewProfileStats()
	assert.False(t, stats.ShouldPromote())

	for i := 0; i < 50; i++ {
		stats.RecordEvaluation(50 * time.Microsecond)
	}
	assert.False(t, stats.ShouldPromote())
}

func TestProfileStatsPromoteAdvancesTierOnce(t *testing.T) {
	stats := tiering.NewProfileStats()
	assert.Equal(t, tiering.Interpreter, stats.CurrentTier())

	tier := stats.Promote()
	assert.Equal(t, tiering.BaselineJIT, tier)
	assert.Equal(t, tiering.BaselineJIT, stats.CurrentTier())

	tier = stats.Promote()
	assert.Equal(t, tiering.OptimizedJIT, tier)

	// Already at top of the implemented ladder: further promotion is a no-op.
	tier = stats.Promote()
	assert.Equal(t, tiering.OptimizedJIT, tier)
}

type stubInterpreter struct {
	calls  int
	result bool
	err    error
}

func (s *stubInterpreter) Evaluate(cp *bytecode.CompiledPolicy, ctx *evalctx.EvaluationContext) (bool, error) {
	s.calls++
	return s.result, s.err
}

type stubExecutable struct {
	result bool
}

func (s *stubExecutable) Execute(ctx *evalctx.EvaluationContext) (bool, error) {
	return s.result, nil
}

type stubJIT struct {
	calls int
}

func (s *stubJIT) Compile(name string, cp *bytecode.CompiledPolicy) (tiering.Executable, error) {
	s.calls++
	return &stubExecutable{result: true}, nil
}

func TestManagerEvaluateUnknownPolicyDeniesWithoutError(t *testing.T) {
	m := tiering.NewManager(&stubInterpreter{}, nil)
	result, err := m.Evaluate("missing", nil)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestManagerEvaluateUsesInterpreterByDefault(t *testing.T) {
	interp := &stubInterpreter{result: true}
	m := tiering.NewManager(interp, nil)
	m.Register(bytecode.NewCompiledPolicy(1, "p"), "p")

	result, err := m.Evaluate("p", evalctx.New(evalctx.Resource{}, evalctx.Action{}, evalctx.Request{}))
	require.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 1, interp.calls)
}

func TestManagerPropagatesInterpreterError(t *testing.T) {
	interp := &stubInterpreter{err: errors.New("boom")}
	m := tiering.NewManager(interp, nil)
	m.Register(bytecode.NewCompiledPolicy(1, "p"), "p")

	_, err := m.Evaluate("p", evalctx.New(evalctx.Resource{}, evalctx.Action{}, evalctx.Request{}))
	assert.Error(t, err)
}

func TestManagerCompileSyncPromotesAndUsesFastPath(t *testing.T) {
	interp := &stubInterpreter{result: false}
	jit := &stubJIT{}
	m := tiering.NewManager(interp, jit)
	m.Register(bytecode.NewCompiledPolicy(1, "p"), "p")

	require.NoError(t, m.CompileSync("p"))

	result, err := m.Evaluate("p", evalctx.New(evalctx.Resource{}, evalctx.Action{}, evalctx.Request{}))
	require.NoError(t, err)
	assert.True(t, result) // stubExecutable always returns true
	assert.Equal(t, 0, interp.calls, "fast path should bypass the interpreter")

	snaps := m.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, tiering.BaselineJIT, snaps[0].Tier)
}
