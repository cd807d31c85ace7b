package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javajack/sheetops"
	"github.com/javajack/sheetops/sheetio"
)

var (
	runOpsPath string
	runOutput  string
)

var runCmd = &cobra.Command{
	Use:   "run --ops <program.json> <file.xlsx> [file.xlsx...]",
	Short: "Execute an operation program against one or more workbooks",
	Long: `Execute an operation program against one or more workbooks.

Each workbook is loaded with its filename stem as the file id, so a program
can reference "orders.xlsx" as file_id "orders". The program is parsed and
validated as a whole; any parse or validation error rejects the batch before
anything runs. Execution errors are reported per operation and do not stop
the remaining operations.

After execution the equivalent Excel formulas are printed, and with --output
the mutated workbooks are written to a single xlsx file.

Examples:
  sheetops run --ops program.json orders.xlsx
  sheetops run --ops program.json orders.xlsx customers.xlsx -o result.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runOpsPath, "ops", "", "Path to the operation program JSON document (required)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the resulting workbooks to this xlsx file")
	runCmd.MarkFlagRequired("ops")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	opsJSON, err := os.ReadFile(runOpsPath)
	if err != nil {
		return fmt.Errorf("reading program: %w", err)
	}

	collection, err := loadFiles(args)
	if err != nil {
		return err
	}

	var opts []sheetops.Option
	if logger := runLogger(); logger != nil {
		opts = append(opts, sheetops.WithLogger(logger))
	}

	result := sheetops.Run(string(opsJSON), collection, opts...)

	if result.Execution == nil {
		// Parse or validation failure: the batch was rejected.
		if jsonOutput {
			return jsonPrint(map[string]any{"errors": result.Errors})
		}
		fmt.Println("Program rejected:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return fmt.Errorf("%d validation error(s)", len(result.Errors))
	}

	if jsonOutput {
		if err := jsonPrint(runPayload(result)); err != nil {
			return err
		}
	} else {
		printRunResult(result)
	}

	if runOutput != "" {
		if err := sheetio.WriteFile(result.Collection, runOutput); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("\nWrote %s\n", runOutput)
		}
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d operation(s) reported errors", len(result.Errors))
	}
	return nil
}

func runPayload(result *sheetops.RunResult) map[string]any {
	variables := make(map[string]any, len(result.Execution.Variables))
	for name, v := range result.Execution.Variables {
		variables[name] = sheetops.ToAny(v)
	}
	return map[string]any{
		"variables": variables,
		"errors":    result.Errors,
		"formulas":  result.Formulas,
		"report":    result.Report,
	}
}

func printRunResult(result *sheetops.RunResult) {
	if len(result.Execution.Variables) > 0 {
		fmt.Println("Variables:")
		for _, opRes := range result.Execution.OperationResults {
			name := variableName(opRes.Operation)
			if name == "" {
				continue
			}
			if v, ok := result.Execution.Variables[name]; ok {
				fmt.Printf("  %s = %s\n", name, formatValue(v))
			}
		}
	}

	for fileID, sheets := range result.Execution.NewSheets {
		for name, table := range sheets {
			fmt.Printf("New sheet %s/%s: %d rows x %d columns\n",
				fileID, name, table.RowCount(), len(table.Columns()))
		}
	}

	if len(result.Errors) > 0 {
		fmt.Println("Errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if result.Report != "" {
		fmt.Println("\nExcel formulas:")
		fmt.Println(result.Report)
	}
}

func variableName(op sheetops.Operation) string {
	switch o := op.(type) {
	case *sheetops.AggregateOp:
		return o.As
	case *sheetops.ComputeOp:
		return o.As
	}
	return ""
}
