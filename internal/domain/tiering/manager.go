package tiering

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ipe-systems/ipe/internal/domain/evalctx"
	"github.com/ipe-systems/ipe/internal/lang/bytecode"
)

// Interpreter is the slow-path evaluator every TieredPolicy always falls
// back to. internal/lang/vm.Interpreter satisfies this structurally.
type Interpreter interface {
	Evaluate(cp *bytecode.CompiledPolicy, ctx *evalctx.EvaluationContext) (bool, error)
}

// Executable is a compiled fast path produced by a JITCompiler for one
// policy.
type Executable interface {
	Execute(ctx *evalctx.EvaluationContext) (bool, error)
}

// JITCompiler turns a policy's bytecode into an Executable.
// internal/adapter/outbound/nativejit.Compiler satisfies this structurally.
type JITCompiler interface {
	Compile(name string, cp *bytecode.CompiledPolicy) (Executable, error)
}

// TieredPolicy pairs one policy's bytecode with its adaptive profile and,
// once promoted, its compiled fast path.
type TieredPolicy struct {
	Bytecode *bytecode.CompiledPolicy
	Name     string
	Stats    *ProfileStats

	mu         sync.RWMutex
	compiled   Executable
	compiling  atomic.Bool
}

// NewTieredPolicy wraps cp for adaptive execution, using thresholds for its
// promotion ladder.
func NewTieredPolicy(cp *bytecode.CompiledPolicy, name string, thresholds Thresholds) *TieredPolicy {
	return &TieredPolicy{Bytecode: cp, Name: name, Stats: NewProfileStatsWithThresholds(thresholds)}
}

func (tp *TieredPolicy) fastPath() Executable {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return tp.compiled
}

func (tp *TieredPolicy) setFastPath(e Executable) {
	tp.mu.Lock()
	tp.compiled = e
	tp.mu.Unlock()
}

// Manager owns the tiered policy set and dispatches evaluation to the
// interpreter or, once promoted, the compiled fast path, triggering
// background JIT compilation when a policy's profile crosses its
// promotion threshold.
type Manager struct {
	interpreter Interpreter
	jit         JITCompiler
	thresholds  Thresholds

	mu       sync.RWMutex
	policies map[string]*TieredPolicy
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithThresholds overrides the promotion ladder every policy Register'd
// afterward is built with, threading internal/config.TieringConfig's
// operator-tunable knobs through to ProfileStats.ShouldPromote.
func WithThresholds(thresholds Thresholds) ManagerOption {
	return func(m *Manager) { m.thresholds = thresholds }
}

// NewManager builds a Manager. jit may be nil, in which case every policy
// stays pinned to the Interpreter tier (promotion bookkeeping still runs,
// but no fast path is ever compiled). Without WithThresholds, DefaultThresholds
// applies.
func NewManager(interpreter Interpreter, jit JITCompiler, opts ...ManagerOption) *Manager {
	m := &Manager{
		interpreter: interpreter,
		jit:         jit,
		thresholds:  DefaultThresholds(),
		policies:    make(map[string]*TieredPolicy),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a policy under tiered management, replacing any prior
// entry with the same name.
func (m *Manager) Register(cp *bytecode.CompiledPolicy, name string) *TieredPolicy {
	tp := NewTieredPolicy(cp, name, m.thresholds)
	m.mu.Lock()
	m.policies[name] = tp
	m.mu.Unlock()
	return tp
}

// Evaluate runs name's policy against ctx, using its compiled fast path if
// one has been promoted in, and falling back to the interpreter otherwise.
// Every call records latency into the policy's ProfileStats; a successful
// interpreter-path call may also trigger asynchronous promotion.
func (m *Manager) Evaluate(name string, ctx *evalctx.EvaluationContext) (bool, error) {
	m.mu.RLock()
	tp, ok := m.policies[name]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}

	start := time.Now()

	if fast := tp.fastPath(); fast != nil {
		result, err := fast.Execute(ctx)
		tp.Stats.RecordEvaluation(time.Since(start))
		return result, err
	}

	result, err := m.interpreter.Evaluate(tp.Bytecode, ctx)
	tp.Stats.RecordEvaluation(time.Since(start))
	if err != nil {
		return false, err
	}

	if m.jit != nil && tp.Stats.ShouldPromote() {
		m.triggerCompilation(tp)
	}

	return result, nil
}

// triggerCompilation compiles tp's fast path on a background goroutine,
// guarding against overlapping compiles for the same policy with an atomic
// flag rather than a mutex held across the (potentially slow) compile call.
func (m *Manager) triggerCompilation(tp *TieredPolicy) {
	if !tp.compiling.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer tp.compiling.Store(false)
		exe, err := m.jit.Compile(tp.Name, tp.Bytecode)
		if err != nil {
			return
		}
		tp.setFastPath(exe)
		tp.Stats.Promote()
	}()
}

// CompileSync compiles name's fast path inline, for callers that need a
// critical policy promoted before serving its first request.
func (m *Manager) CompileSync(name string) error {
	m.mu.RLock()
	tp, ok := m.policies[name]
	m.mu.RUnlock()
	if !ok || m.jit == nil {
		return nil
	}
	exe, err := m.jit.Compile(tp.Name, tp.Bytecode)
	if err != nil {
		return err
	}
	tp.setFastPath(exe)
	tp.Stats.Promote()
	return nil
}

// Snapshots returns a point-in-time view of every registered policy's
// tiering stats, for an outbound metrics adapter to export.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.policies))
	for name, tp := range m.policies {
		out = append(out, tp.Stats.Snapshot(name))
	}
	return out
}
