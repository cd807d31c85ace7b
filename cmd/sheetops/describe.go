package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javajack/sheetops"
)

var describeSamples int

var describeCmd = &cobra.Command{
	Use:   "describe <file.xlsx> [file.xlsx...]",
	Short: "Print the sheets, columns, and sample values of workbooks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().IntVar(&describeSamples, "samples", 3, "Sample values to show per column")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	collection, err := loadFiles(args)
	if err != nil {
		return err
	}

	schemas := sheetops.Describe(collection, sheetops.WithSampleCount(describeSamples))

	if jsonOutput {
		return jsonPrint(schemas)
	}

	for _, fileID := range collection.FileIDs() {
		file, err := collection.File(fileID)
		if err != nil {
			return err
		}
		fmt.Printf("File: %s (id: %s)\n", file.Filename, fileID)
		for _, sheetName := range file.SheetNames() {
			table, err := file.Sheet(sheetName)
			if err != nil {
				return err
			}
			fmt.Printf("  Sheet: %s (%d rows)\n", sheetName, table.RowCount())
			for _, col := range schemas[fileID][sheetName] {
				letter, err := table.ColumnLetter(col.Name)
				if err != nil {
					return err
				}
				samples := make([]string, len(col.Samples))
				for i, v := range col.Samples {
					samples[i] = formatValue(v)
				}
				fmt.Printf("    %s %-20s %-8s %s\n",
					letter, col.Name, col.Type, strings.Join(samples, ", "))
			}
		}
	}
	return nil
}
