package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/luasense"
)

var (
	flagManual bool
	flagPrefix string
)

var completeCmd = &cobra.Command{
	Use:   "complete <file> <offset|line:col>",
	Short: "List the completions at a position in a file",
	Long: "Analyses the file with the cursor at the given position and prints the completions. " +
		"The position is a 0-based byte offset, or a 1-based line and byte column separated by a colon.",
	Args: cobra.ExactArgs(2),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().BoolVar(&flagManual, "manual", false, "complete even when nothing has been typed at the cursor")
	completeCmd.Flags().StringVar(&flagPrefix, "prefix", "", "partially typed name before the cursor (default: taken from the file)")
}

func runComplete(cmd *cobra.Command, args []string) error {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("complete", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return outputError("complete", fmt.Errorf("reading %s: %w", file, err))
	}
	src := string(data)
	cursor, err := parsePosition(src, args[1])
	if err != nil {
		return outputError("complete", err)
	}

	cfg, err := loadConfig(cmd, filepath.Dir(file))
	if err != nil {
		return outputError("complete", err)
	}
	ctx := context.Background()
	engine, err := newEngine(ctx, cfg, false)
	if err != nil {
		return outputError("complete", err)
	}
	defer engine.Close()

	got, err := engine.Complete(ctx, luasense.Request{
		Source:            src,
		Cursor:            cursor,
		Prefix:            flagPrefix,
		ActivatedManually: flagManual,
	})
	if err != nil {
		return outputError("complete", err)
	}
	results := suggestionsToCLI(got)
	count := len(results)
	return outputResult(CLIResult{Command: "complete", Results: results, TotalCount: &count})
}

// parsePosition converts "offset" or "line:col" to a byte offset in src.
func parsePosition(src, pos string) (int, error) {
	line, col, ok := strings.Cut(pos, ":")
	if !ok {
		return parseIntArg(pos, "offset")
	}
	l, err := parseIntArg(line, "line")
	if err != nil {
		return 0, err
	}
	c, err := parseIntArg(col, "column")
	if err != nil {
		return 0, err
	}
	return luasense.Offset(src, l, c)
}

// resolveFilePath converts a file argument to an absolute path.
// If the path is already absolute, it's returned as-is.
// Otherwise, it's resolved relative to the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}
