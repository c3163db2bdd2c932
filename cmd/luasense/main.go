package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jward/luasense"
	"github.com/jward/luasense/internal/config"
)

var (
	flagDB         string
	flagFormat     string
	flagLuaVersion string
	flagNoModules  bool
	flagPath       []string
	flagConfig     string
	flagGlobals    []string
	flagVerbose    bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "luasense",
	Short:         "Code completion for Lua",
	Long:          "Luasense infers the types of Lua values with tree-sitter and lists the completions at a position in a file.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagFormat == "" {
			flagFormat = defaultFormat(os.Stdout.Fd())
		}
		return validateFormat(flagFormat)
	},
	// No Run: prints help by default.
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "", "summary database path (default: .luasense/summaries.db relative to the project root)")
	pf.StringVar(&flagFormat, "format", "", "output format: json|text (default: text on a terminal, json otherwise)")
	pf.StringVar(&flagLuaVersion, "lua-version", "", "Lua dialect: 5.1|5.2|5.3|5.4|luajit")
	pf.BoolVar(&flagNoModules, "no-modules", false, "do not follow require calls")
	pf.StringSliceVar(&flagPath, "path", nil, "module path templates such as ?.lua (repeatable)")
	pf.StringVar(&flagConfig, "config", "", "config file (default: nearest "+config.FileName+")")
	pf.StringSliceVar(&flagGlobals, "globals-script", nil, "extra Risor environment script (repeatable)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log analysis progress to stderr")

	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(globalsCmd)
	rootCmd.AddCommand(dependentsCmd)
}

// defaultFormat picks text for terminals and json for pipes.
func defaultFormat(fd uintptr) string {
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return "text"
	}
	return "json"
}

// loadConfig reads --config or the nearest config file above dir, then
// applies the command-line overrides.
func loadConfig(cmd *cobra.Command, dir string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, err = config.Discover(dir)
	}
	if err != nil {
		return nil, err
	}
	if cfg.DB == "" {
		cfg.DB = filepath.Join(findRepoRoot(cfg.Dir), ".luasense", "summaries.db")
	}
	applyFlags(cmd, cfg)
	return cfg, nil
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("lua-version") {
		cfg.LuaVersion = flagLuaVersion
	}
	if flags.Changed("no-modules") {
		cfg.SetModules(!flagNoModules)
	}
	if flags.Changed("path") {
		cfg.Path = flagPath
	}
	if flags.Changed("globals-script") {
		cfg.GlobalsScripts = append(cfg.GlobalsScripts, flagGlobals...)
	}
	if flags.Changed("db") {
		cfg.DB = resolveDBPath(findRepoRoot(cfg.Dir))
	}
}

// newEngine builds an Engine from cfg. With useStore false the summary
// database is only opened when it already exists.
func newEngine(ctx context.Context, cfg *config.Config, useStore bool) (*luasense.Engine, error) {
	opts := []luasense.Option{
		luasense.WithLuaVersion(cfg.LuaVersion),
		luasense.WithCompleteModules(cfg.Modules()),
		luasense.WithSearchPath(cfg.Path, cfg.Roots...),
		luasense.WithEnvironmentScript(cfg.GlobalsScripts...),
		luasense.WithLogger(newLogger()),
	}
	if useStore {
		if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(cfg.DB), err)
		}
		opts = append(opts, luasense.WithStore(cfg.DB))
	} else if _, err := os.Stat(cfg.DB); err == nil {
		opts = append(opts, luasense.WithStore(cfg.DB))
	}
	e, err := luasense.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the --db flag path, resolved against base when
// relative.
func resolveDBPath(base string) string {
	if filepath.IsAbs(flagDB) {
		return flagDB
	}
	return filepath.Join(base, flagDB)
}

// resolveTargetDir returns the absolute path of the directory argument.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
