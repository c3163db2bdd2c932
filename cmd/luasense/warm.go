package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var flagForce bool

var warmCmd = &cobra.Command{
	Use:   "warm [dir]",
	Short: "Analyse every module under a directory into the summary database",
	Long: "Discovers the Lua modules under dir (default: the current directory), analyses them in parallel " +
		"and stores their summaries so later completions skip unchanged modules.",
	Args: cobra.MaximumNArgs(1),
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().BoolVar(&flagForce, "force", false, "delete the database and analyse from scratch")
}

func runWarm(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("warm", err)
	}
	cfg, err := loadConfig(cmd, targetDir)
	if err != nil {
		return outputError("warm", err)
	}

	// Handle --force: delete the DB file entirely.
	if flagForce {
		if err := os.Remove(cfg.DB); err != nil && !os.IsNotExist(err) {
			return outputError("warm", fmt.Errorf("removing database for --force: %w", err))
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", cfg.DB)
	}

	ctx := context.Background()
	engine, err := newEngine(ctx, cfg, true)
	if err != nil {
		return outputError("warm", err)
	}
	defer engine.Close()

	res, err := engine.WarmModules(ctx, targetDir)
	if err != nil {
		return outputError("warm", err)
	}
	fmt.Fprintf(os.Stderr, "Warmed %s in %s\n", targetDir, res.Elapsed.Round(time.Millisecond))
	return outputResult(CLIResult{Command: "warm", Results: CLIWarmResult{
		Root:      targetDir,
		Database:  cfg.DB,
		Modules:   res.Modules,
		Analysed:  res.Analysed,
		Reused:    res.Reused,
		Missing:   res.Missing,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}})
}
