package luasense

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jward/luasense/internal/analysis"
	"github.com/jward/luasense/internal/loader"
	"github.com/jward/luasense/internal/modcache"
	"github.com/jward/luasense/internal/runtime"
	"github.com/jward/luasense/internal/store"
	"github.com/jward/luasense/internal/syntax"
	"github.com/jward/luasense/internal/typedef"
	"github.com/jward/luasense/scripts"
)

// environmentHashKey is the metadata key holding the hash of the globals
// the stored summaries were analysed against.
const environmentHashKey = "environment_hash"

// Engine answers completion requests for Lua source. It owns the frozen
// global environment, the module cache shared by every request, and the
// optional summary store.
type Engine struct {
	store   *store.Store
	runtime *runtime.Runtime
	cache   *modcache.Cache
	log     *slog.Logger

	luaVersion      string
	completeModules bool
	templates       []string
	roots           []string
	loader          Loader
	globals         *typedef.Table
	envScripts      []string
	scriptsDir      string
	scriptsFS       fs.FS
	dbPath          string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLuaVersion selects the dialect and its standard library: 5.1, 5.2,
// 5.3, 5.4 or luajit. The default is 5.2.
func WithLuaVersion(v string) Option {
	return func(e *Engine) {
		e.luaVersion = v
	}
}

// WithCompleteModules controls whether require calls are followed into the
// required modules. Enabled by default.
func WithCompleteModules(on bool) Option {
	return func(e *Engine) {
		e.completeModules = on
	}
}

// WithSearchPath sets the package.path style templates and the roots they
// are tried against. Without it modules are looked up with
// loader.DefaultTemplates relative to the working directory.
func WithSearchPath(templates []string, roots ...string) Option {
	return func(e *Engine) {
		e.templates = templates
		e.roots = roots
	}
}

// WithLoader replaces the filesystem module loader.
func WithLoader(l Loader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithGlobals supplies the global environment directly instead of running
// environment scripts. The table is deep-frozen.
func WithGlobals(g *Table) Option {
	return func(e *Engine) {
		e.globals = g
	}
}

// WithEnvironmentScript adds Risor scripts run after the built-in globals
// script of the selected Lua version.
func WithEnvironmentScript(paths ...string) Option {
	return func(e *Engine) {
		e.envScripts = append(e.envScripts, paths...)
	}
}

// WithScriptsFS loads the built-in environment scripts from fsys instead
// of the embedded ones.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir loads the built-in environment scripts from a directory
// on disk instead of the embedded ones.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithStore persists module summaries in a SQLite database at dbPath.
func WithStore(dbPath string) Option {
	return func(e *Engine) {
		e.dbPath = dbPath
	}
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New creates an Engine. It evaluates the environment scripts and, with
// WithStore, opens the summary database. Stored summaries analysed
// against a different global environment are discarded.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		completeModules: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.luaVersion = syntax.NormalizeVersion(e.luaVersion)

	var rtOpts []runtime.RuntimeOption
	switch {
	case e.scriptsFS != nil:
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	case e.scriptsDir == "":
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(scripts.FS))
	}
	rtOpts = append(rtOpts, runtime.WithRuntimeLogger(e.log))
	e.runtime = runtime.NewRuntime(e.scriptsDir, rtOpts...)

	if e.globals == nil {
		g, err := e.runtime.Globals(ctx, e.luaVersion, e.envScripts...)
		if err != nil {
			return nil, fmt.Errorf("luasense: globals: %w", err)
		}
		e.globals = g
	} else {
		e.globals.FreezeDeep()
	}

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath)
		if err != nil {
			return nil, fmt.Errorf("luasense: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("luasense: migrate: %w", err)
		}
		e.store = s
		if err := e.checkEnvironment(); err != nil {
			s.Close()
			return nil, err
		}
	}

	if e.loader == nil {
		roots := e.roots
		if len(roots) == 0 {
			roots = []string{"."}
		}
		e.loader = loader.New(e.templates, roots...)
	}
	e.cache = modcache.New(e.loader, e.analysisOptions(), e.summaryStore())

	e.log.Debug("engine.ready", "lua_version", e.luaVersion, "globals", e.globals.Len(), "store", e.dbPath)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying Store, or nil without WithStore.
func (e *Engine) Store() *Store {
	return e.store
}

// LuaVersion returns the normalized dialect the Engine analyses.
func (e *Engine) LuaVersion() string {
	return e.luaVersion
}

// Globals lists the global environment entries starting with prefix.
func (e *Engine) Globals(prefix string) []Suggestion {
	return analysis.SearchGlobals(e.globals, prefix)
}

// Modules lists the module summaries in the store, ordered by name.
func (e *Engine) Modules() ([]*ModuleRecord, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.Modules()
}

// Dependents returns the stored modules that require any of names,
// directly or through other modules, ordered by name.
func (e *Engine) Dependents(names ...string) ([]string, error) {
	if e.store == nil {
		return nil, nil
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	var out []string
	frontier := names
	for len(frontier) > 0 {
		deps, err := e.store.Dependents(frontier...)
		if err != nil {
			return nil, fmt.Errorf("luasense: %w", err)
		}
		frontier = frontier[:0:0]
		for _, d := range deps {
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
			frontier = append(frontier, d)
		}
	}
	sort.Strings(out)
	return out, nil
}

// InvalidateModules makes the next request reload the named modules. With a
// store, the modules known to depend on them are dropped from it too, since
// their summaries embed the old ones.
func (e *Engine) InvalidateModules(names ...string) error {
	deps, err := e.Dependents(names...)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if err := e.store.DeleteModule(d); err != nil {
			return fmt.Errorf("luasense: %w", err)
		}
	}
	e.cache.Invalidate(append(append([]string(nil), names...), deps...)...)
	return nil
}

func (e *Engine) analysisOptions() analysis.Options {
	return analysis.Options{
		LuaVersion:      e.luaVersion,
		CompleteModules: e.completeModules,
		Globals:         e.globals,
		Logger:          e.log,
	}
}

// summaryStore returns the store as a SummaryStore, or a nil interface.
func (e *Engine) summaryStore() store.SummaryStore {
	if e.store == nil {
		return nil
	}
	return e.store
}

// environmentHash is the SHA-256 of the Lua version and the encoded global
// environment.
func (e *Engine) environmentHash() (string, error) {
	data, err := json.Marshal(typedef.Bundle{Values: []*typedef.Value{typedef.NewTable(e.globals)}})
	if err != nil {
		return "", fmt.Errorf("luasense: encode globals: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(e.luaVersion))
	h.Write([]byte{0})
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// checkEnvironment drops stored summaries when the global environment
// differs from the one they were analysed against.
func (e *Engine) checkEnvironment() error {
	current, err := e.environmentHash()
	if err != nil {
		return err
	}
	stored, err := e.store.GetMetadata(environmentHashKey)
	if err != nil {
		return fmt.Errorf("luasense: %w", err)
	}
	if stored == current {
		return nil
	}
	if stored != "" {
		e.log.Info("store.reset", "reason", "environment changed")
	}
	if err := e.store.ResetModules(); err != nil {
		return fmt.Errorf("luasense: %w", err)
	}
	if err := e.store.SetMetadata(environmentHashKey, current); err != nil {
		return fmt.Errorf("luasense: %w", err)
	}
	return nil
}
