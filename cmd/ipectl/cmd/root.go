// Package cmd provides the CLI commands for ipectl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipe-systems/ipe/internal/config"
)

var cfgFile string

// cfg is the loaded configuration, populated by initConfig before any
// subcommand's RunE runs. Subcommands read cfg.Store/cfg.VM/cfg.Tiering
// directly rather than hardcoding their own defaults.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ipectl",
	Short: "ipectl - Idempotent Predicate Engine command line tools",
	Long: `ipectl is a thin command-line façade over the IPE policy engine.

It compiles and validates policy source, evaluates a policy against a
sample request/resource/action context, and benchmarks the interpreter
and closure-JIT execution backends. It does not host a server and applies
no policy of its own beyond what the loaded policy source specifies.

Configuration:
  Config is loaded from ipe.yaml in the current directory, $HOME/.ipe/, or
  /etc/ipe/. Environment variables can override config values with the
  IPE_ prefix. Example: IPE_STORE_WORKER_COUNT=4

Commands:
  compile     Compile policy source to bytecode and print a summary
  validate    Parse and type-check policy source without compiling
  evaluate    Evaluate a compiled policy against a JSON context fixture
  bench       Benchmark interpreter vs closure-JIT evaluation latency`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ipe.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)

	loaded, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg = loaded
}
