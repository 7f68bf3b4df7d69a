package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipe-systems/ipe/internal/lang/parser"
	"github.com/ipe-systems/ipe/internal/lang/typecheck"
)

var validateCmd = &cobra.Command{
	Use:   "validate [policy-file]",
	Short: "Parse and type-check policy source without compiling",
	Long: `Parse the policy file and run the type checker over every
trigger, requirement, and where-clause condition, printing each
diagnostic without producing bytecode.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read policy file: %w", err)
		}

		pol, err := parser.New(string(source)).ParsePolicy()
		if err != nil {
			return fmt.Errorf("parse error: %w", err)
		}

		checker := typecheck.CheckPolicy(pol)
		if !checker.HasErrors() {
			fmt.Printf("%s: OK\n", pol.Name)
			return nil
		}

		fmt.Printf("%s: %d error(s)\n", pol.Name, len(checker.Errors()))
		for _, e := range checker.Errors() {
			fmt.Printf("  - %s\n", e.Message)
		}
		return fmt.Errorf("validation failed")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
