package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javajack/sheetops"
	"github.com/javajack/sheetops/sheetio"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "sheetops",
	Short:         "Execute operation programs against xlsx workbooks",
	Version:       Version,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log each operation as it executes")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadFiles reads each xlsx path into one collection. The file id is the
// filename without extension, so programs can reference files by name.
func loadFiles(paths []string) (*sheetops.FileCollection, error) {
	collection := sheetops.NewFileCollection()
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		loaded, err := sheetio.Load(path, stem)
		if err != nil {
			return nil, err
		}
		for _, fileID := range loaded.FileIDs() {
			file, err := loaded.File(fileID)
			if err != nil {
				return nil, err
			}
			collection.AddFile(file)
		}
	}
	return collection, nil
}

func runLogger() *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func jsonPrint(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatValue(v sheetops.Value) string {
	if v == nil {
		return "(blank)"
	}
	if t, ok := v.(sheetops.Text); ok {
		return fmt.Sprintf("%q", string(t))
	}
	return sheetops.ValueString(v)
}
