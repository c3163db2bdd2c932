// Package runtime evaluates environment scripts: Risor programs that
// declare the Lua global environment (standard library tables, functions
// and their documentation) through host functions.
package runtime

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/luasense/internal/syntax"
	"github.com/jward/luasense/internal/typedef"
)

// Runtime embeds a Risor VM and provides the environment-definition host
// functions to scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	log        *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log object.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime loading scripts from scriptsDir.
// Accepts optional RuntimeOptions for configuration such as fs.FS-based script loading.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{scriptsDir: scriptsDir}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Globals builds the frozen global environment for a Lua version: the
// shared base script, the version's script, then each user script read
// from disk in order.
func (r *Runtime) Globals(ctx context.Context, version string, userScripts ...string) (*typedef.Table, error) {
	if !SupportedVersion(version) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	env := NewEnvironment(syntax.NormalizeVersion(version))
	for _, path := range []string{BaseScriptPath, GlobalsScriptPath(version)} {
		if err := r.RunScript(ctx, path, env); err != nil {
			return nil, err
		}
	}
	for _, path := range userScripts {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("runtime: loading script %s: %w", path, err)
		}
		if err := r.eval(ctx, string(data), path, env); err != nil {
			return nil, err
		}
	}
	return env.Freeze(), nil
}

// RunScript loads and executes a Risor script against env.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, env *Environment) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, env)
}

// RunSource executes Risor source code directly against env. Useful for
// testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, env *Environment) error {
	return r.eval(ctx, source, "<inline>", env)
}

func (r *Runtime) eval(ctx context.Context, source, label string, env *Environment) error {
	globals := r.buildGlobals(env, label)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	r.log.Debug("runtime.script", "script", label, "globals", env.Table().Len())
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		// fs.FS paths are slash-separated and relative.
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(env *Environment, label string) map[string]any {
	return map[string]any{
		"define_table":    makeDefineTableFn(env),
		"define_value":    makeDefineValueFn(env),
		"define_function": makeDefineFunctionFn(env),
		"describe":        makeDescribeFn(env),
		"lua_version":     object.NewString(env.version),
		"log":             mustProxy(&logObject{log: r.log, script: label}),
	}
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
