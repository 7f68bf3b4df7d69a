package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipe-systems/ipe/internal/lang/compiler"
	"github.com/ipe-systems/ipe/internal/lang/parser"
)

var compileOutPath string

var compileCmd = &cobra.Command{
	Use:   "compile [policy-file]",
	Short: "Compile policy source to bytecode and print a summary",
	Long: `Parse and compile a policy source file, printing the resulting
bytecode's instruction count, constant pool size, and field mapping.

With --out, the compiled policy's wire-format bytes are also written to
the given path (internal/lang/bytecode.CompiledPolicy.ToBytes).`,
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

		cp, err := compiler.Compile(pol)
		if err != nil {
			return fmt.Errorf("compile error: %w", err)
		}

		fmt.Printf("policy:        %s\n", cp.Name)
		fmt.Printf("instructions:  %d\n", len(cp.Code))
		fmt.Printf("constants:     %d\n", len(cp.Constants))
		fmt.Printf("field mapping: %d entries\n", len(cp.FieldMapping))
		fmt.Printf("size:          %d bytes\n", cp.SizeBytes())

		if compileOutPath != "" {
			wire, err := cp.ToBytes()
			if err != nil {
				return fmt.Errorf("failed to serialize bytecode: %w", err)
			}
			if err := os.WriteFile(compileOutPath, wire, 0644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			fmt.Printf("wrote:         %s\n", compileOutPath)
		}

		return nil
	},
}

func init() {
	compileCmd.Flags().StringVar(&compileOutPath, "out", "", "write compiled bytecode to this path")
	rootCmd.AddCommand(compileCmd)
}
