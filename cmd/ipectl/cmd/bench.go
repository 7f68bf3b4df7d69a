package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipe-systems/ipe/internal/adapter/outbound/nativejit"
	"github.com/ipe-systems/ipe/internal/lang/compiler"
	"github.com/ipe-systems/ipe/internal/lang/parser"
)

var (
	benchContextPath string
	benchIterations  int
)

// latencyStats holds the percentiles a benchmark run reports, mirroring
// the p50/p99 targets original_source/crates/ipe-core/benches/evaluation.rs
// checked with criterion (<50us p99 interpreter, <10us p99 JIT). No
// criterion equivalent exists in the pack, so the loop below is a plain
// repeat-N-iterations timer with sorted-duration percentiles — see
// DESIGN.md for why this stays on the standard library.
type latencyStats struct {
	p50, p99, max time.Duration
}

func computeStats(durations []time.Duration) latencyStats {
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(pct float64) time.Duration {
		i := int(pct * float64(len(sorted)))
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}

	return latencyStats{
		p50: idx(0.50),
		p99: idx(0.99),
		max: sorted[len(sorted)-1],
	}
}

var benchCmd = &cobra.Command{
	Use:   "bench [policy-file]",
	Short: "Benchmark interpreter vs closure-JIT evaluation latency",
	Long: `Compile the given policy once, then evaluate it --iterations times
against the --context fixture through both the bytecode interpreter and
the closure-JIT backend, reporting p50/p99/max latency for each.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchContextPath == "" {
			return fmt.Errorf("--context is required")
		}

		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read policy file: %w", err)
		}

		pol, err := parser.New(string(source)).ParsePolicy()
		if err != nil {
			return fmt.Errorf("parse error: %w", err)
		}

		cp, err := compiler.Compile(pol)
		if err != nil {
			return fmt.Errorf("compile error: %w", err)
		}

		ec, err := loadFixture(benchContextPath)
		if err != nil {
			return err
		}

		interp := newInterpreter()
		if _, err := interp.Evaluate(cp, ec); err != nil {
			return fmt.Errorf("interpreter warm-up evaluation failed: %w", err)
		}

		interpDurations := make([]time.Duration, benchIterations)
		for i := 0; i < benchIterations; i++ {
			start := time.Now()
			if _, err := interp.Evaluate(cp, ec); err != nil {
				return fmt.Errorf("interpreter evaluation failed: %w", err)
			}
			interpDurations[i] = time.Since(start)
		}

		jitCompiler := nativejit.New()
		executable, err := jitCompiler.Compile(pol.Name, cp)
		if err != nil {
			return fmt.Errorf("jit compile error: %w", err)
		}

		jitDurations := make([]time.Duration, benchIterations)
		for i := 0; i < benchIterations; i++ {
			start := time.Now()
			if _, err := executable.Execute(ec); err != nil {
				return fmt.Errorf("jit evaluation failed: %w", err)
			}
			jitDurations[i] = time.Since(start)
		}

		interpStats := computeStats(interpDurations)
		jitStats := computeStats(jitDurations)

		fmt.Printf("policy:      %s (%d iterations)\n", pol.Name, benchIterations)
		fmt.Printf("interpreter: p50=%s p99=%s max=%s\n", interpStats.p50, interpStats.p99, interpStats.max)
		fmt.Printf("closure-jit: p50=%s p99=%s max=%s\n", jitStats.p50, jitStats.p99, jitStats.max)

		return nil
	},
}

func init() {
	benchCmd.Flags().StringVar(&benchContextPath, "context", "", "path to a JSON context fixture (required)")
	benchCmd.Flags().IntVar(&benchIterations, "iterations", 10000, "number of evaluations to time per backend")
	rootCmd.AddCommand(benchCmd)
}
