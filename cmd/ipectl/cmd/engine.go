package cmd

import (
	"time"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/nativejit"
	"github.com/ipe-systems/ipe/internal/domain/tiering"
	"github.com/ipe-systems/ipe/internal/lang/vm"
)

// newInterpreter builds the bytecode interpreter honoring cfg.VM's
// operand-stack bound.
func newInterpreter() *vm.Interpreter {
	return vm.New(vm.WithMaxStackSize(cfg.VM.MaxStackSize))
}

// newTieringManager builds a tiering.Manager over interp, threading
// cfg.Tiering's promotion ladder through to every policy it registers.
// When tiering is disabled, no JITCompiler is installed: promotion
// bookkeeping still runs but every policy stays pinned to the interpreter.
func newTieringManager(interp tiering.Interpreter) *tiering.Manager {
	var jit tiering.JITCompiler
	if cfg.Tiering.Enabled {
		jit = nativejit.New()
	}
	return tiering.NewManager(interp, jit, tiering.WithThresholds(tieringThresholds()))
}

func tieringThresholds() tiering.Thresholds {
	thresholds := tiering.DefaultThresholds()
	if cfg.Tiering.BaselineJITThreshold > 0 {
		thresholds.BaselinePromoteCount = cfg.Tiering.BaselineJITThreshold
	}
	if cfg.Tiering.OptimizedJITThreshold > 0 {
		thresholds.OptimizedPromoteCount = cfg.Tiering.OptimizedJITThreshold
	}
	if cfg.Tiering.OptimizedJITLatencyNs > 0 {
		thresholds.OptimizedPromoteLatencyNs = cfg.Tiering.OptimizedJITLatencyNs
	}
	if d, err := time.ParseDuration(cfg.Tiering.PromotionCooldown); err == nil {
		thresholds.PromotionCooldown = d
	}
	return thresholds
}
