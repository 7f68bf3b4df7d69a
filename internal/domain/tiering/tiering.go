// Package tiering implements the adaptive execution-tier ladder: every
// policy starts interpreted, and is promoted to a faster backend once its
// profile crosses the promotion thresholds.
package tiering

import (
	"sync"
	"sync/atomic"
	"time"
)

// ExecutionTier ranks a policy's current execution backend. Values are
// ordered: Interpreter < BaselineJIT < OptimizedJIT < NativeAOT. This port
// implements Interpreter and BaselineJIT (closure-compiled, see
// internal/adapter/outbound/nativejit) concretely. OptimizedJIT is a tier
// value ProfileStats can be promoted to, with no backend of its own: it
// shares BaselineJIT's execution path. NativeAOT is defined for ordering
// only; Promote never advances past OptimizedJIT.
type ExecutionTier int32

const (
	Interpreter ExecutionTier = iota
	BaselineJIT
	OptimizedJIT
	NativeAOT
)

func (t ExecutionTier) String() string {
	switch t {
	case Interpreter:
		return "interpreter"
	case BaselineJIT:
		return "baseline_jit"
	case OptimizedJIT:
		return "optimized_jit"
	case NativeAOT:
		return "native_aot"
	default:
		return "unknown"
	}
}

// Thresholds parameterizes the promotion ladder: how many evaluations (and,
// past BaselineJIT, how high an average latency) a policy must accumulate
// before ProfileStats.ShouldPromote fires, and the minimum cooldown between
// promotions. internal/config.TieringConfig carries these as operator-tunable
// knobs; DefaultThresholds mirrors the original tiering ladder exactly.
type Thresholds struct {
	BaselinePromoteCount      uint64
	OptimizedPromoteCount     uint64
	OptimizedPromoteLatencyNs uint64
	PromotionCooldown         time.Duration
}

// DefaultThresholds returns the ladder's built-in values, used whenever a
// Manager or ProfileStats is built without an explicit Thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BaselinePromoteCount:      100,
		OptimizedPromoteCount:     10_000,
		OptimizedPromoteLatencyNs: 20_000,
		PromotionCooldown:         10 * time.Second,
	}
}

// ProfileStats tracks a single policy's evaluation history for adaptive
// promotion decisions. Counters are lock-free; the tier and promotion
// timestamp are guarded by a RWMutex since they change far less often than
// they are read.
type ProfileStats struct {
	evalCount      atomic.Uint64
	totalLatencyNs atomic.Uint64

	thresholds Thresholds

	mu           sync.RWMutex
	currentTier  ExecutionTier
	lastPromoted time.Time
}

// NewProfileStats builds a ProfileStats starting at Interpreter tier, using
// DefaultThresholds.
func NewProfileStats() *ProfileStats {
	return NewProfileStatsWithThresholds(DefaultThresholds())
}

// NewProfileStatsWithThresholds builds a ProfileStats with an explicit
// promotion ladder, for callers (the tiering Manager) threading
// operator-configured thresholds through to ShouldPromote.
func NewProfileStatsWithThresholds(thresholds Thresholds) *ProfileStats {
	return &ProfileStats{thresholds: thresholds, lastPromoted: time.Now()}
}

// RecordEvaluation folds one evaluation's latency into the running totals.
func (p *ProfileStats) RecordEvaluation(latency time.Duration) {
	p.evalCount.Add(1)
	p.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
}

// EvalCount returns the total number of recorded evaluations.
func (p *ProfileStats) EvalCount() uint64 {
	return p.evalCount.Load()
}

// AvgLatencyNs returns the mean evaluation latency in nanoseconds, or 0 if
// no evaluations have been recorded.
func (p *ProfileStats) AvgLatencyNs() uint64 {
	count := p.evalCount.Load()
	if count == 0 {
		return 0
	}
	return p.totalLatencyNs.Load() / count
}

// CurrentTier returns the policy's current execution tier.
func (p *ProfileStats) CurrentTier() ExecutionTier {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentTier
}

// ShouldPromote reports whether this policy has crossed its current tier's
// promotion threshold and is past the cooldown since its last promotion.
func (p *ProfileStats) ShouldPromote() bool {
	p.mu.RLock()
	tier := p.currentTier
	sincePromotion := time.Since(p.lastPromoted)
	p.mu.RUnlock()

	if sincePromotion < p.thresholds.PromotionCooldown {
		return false
	}

	count := p.evalCount.Load()
	avgLatency := p.AvgLatencyNs()

	switch tier {
	case Interpreter:
		return count >= p.thresholds.BaselinePromoteCount
	case BaselineJIT:
		return count >= p.thresholds.OptimizedPromoteCount && avgLatency > p.thresholds.OptimizedPromoteLatencyNs
	default:
		return false
	}
}

// Promote advances the policy one step up the tier ladder and resets the
// cooldown clock. It is a monotone single-step advance that stops at
// OptimizedJIT: calling it there leaves the tier unchanged and only resets
// the cooldown clock.
func (p *ProfileStats) Promote() ExecutionTier {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.currentTier {
	case Interpreter:
		p.currentTier = BaselineJIT
	case BaselineJIT:
		p.currentTier = OptimizedJIT
	}
	p.lastPromoted = time.Now()
	return p.currentTier
}

// Snapshot is a point-in-time, allocation-free read of a policy's stats,
// suitable for exporting as metrics.
type Snapshot struct {
	Name        string
	Tier        ExecutionTier
	EvalCount   uint64
	AvgLatency  uint64
}

// Snapshot captures name alongside the current counters and tier.
func (p *ProfileStats) Snapshot(name string) Snapshot {
	return Snapshot{
		Name:       name,
		Tier:       p.CurrentTier(),
		EvalCount:  p.EvalCount(),
		AvgLatency: p.AvgLatencyNs(),
	}
}
