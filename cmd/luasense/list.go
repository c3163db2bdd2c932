package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the module summaries in the database",
	Args:  cobra.NoArgs,
	RunE:  runModules,
}

var globalsCmd = &cobra.Command{
	Use:   "globals [prefix]",
	Short: "List the global environment entries starting with prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGlobals,
}

func runModules(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return outputError("modules", fmt.Errorf("getting cwd: %w", err))
	}
	cfg, err := loadConfig(cmd, cwd)
	if err != nil {
		return outputError("modules", err)
	}
	if _, err := os.Stat(cfg.DB); os.IsNotExist(err) {
		return outputError("modules", fmt.Errorf("database not found: %s (run 'luasense warm' first)", cfg.DB))
	}

	engine, err := newEngine(context.Background(), cfg, true)
	if err != nil {
		return outputError("modules", err)
	}
	defer engine.Close()

	mods, err := engine.Modules()
	if err != nil {
		return outputError("modules", err)
	}
	results := make([]CLIModule, 0, len(mods))
	for _, m := range mods {
		results = append(results, moduleToCLI(m))
	}
	count := len(results)
	return outputResult(CLIResult{Command: "modules", Results: results, TotalCount: &count})
}

func runGlobals(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return outputError("globals", fmt.Errorf("getting cwd: %w", err))
	}
	cfg, err := loadConfig(cmd, cwd)
	if err != nil {
		return outputError("globals", err)
	}
	engine, err := newEngine(context.Background(), cfg, false)
	if err != nil {
		return outputError("globals", err)
	}
	defer engine.Close()

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	results := suggestionsToCLI(engine.Globals(prefix))
	count := len(results)
	return outputResult(CLIResult{Command: "globals", Results: results, TotalCount: &count})
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <module>...",
	Short: "List the stored modules that require the given modules, directly or not",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDependents,
}

func runDependents(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return outputError("dependents", fmt.Errorf("getting cwd: %w", err))
	}
	cfg, err := loadConfig(cmd, cwd)
	if err != nil {
		return outputError("dependents", err)
	}
	if _, err := os.Stat(cfg.DB); os.IsNotExist(err) {
		return outputError("dependents", fmt.Errorf("database not found: %s (run 'luasense warm' first)", cfg.DB))
	}

	engine, err := newEngine(context.Background(), cfg, true)
	if err != nil {
		return outputError("dependents", err)
	}
	defer engine.Close()

	deps, err := engine.Dependents(args...)
	if err != nil {
		return outputError("dependents", err)
	}
	if deps == nil {
		deps = []string{}
	}
	count := len(deps)
	return outputResult(CLIResult{Command: "dependents", Results: deps, TotalCount: &count})
}
