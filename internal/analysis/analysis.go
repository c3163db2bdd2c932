// Package analysis infers Lua types from parse events.
//
// An Analysis is a Handler for the syntax parser. While the source is
// parsed it builds the scope chain and records every node; End then
// resolves the file's require targets, runs the extraction pass that binds
// assigned and declared names to their inferred types, and correlates doc
// comments. After that the analysis answers completion queries
// (SolveQuery) or summarises the file as a module (ReturnModule).
//
// Every Analysis owns its state. The global environment it starts from is
// a frozen table shared between analyses; writes to globals land in a
// private overlay that delegates to it.
package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jward/luasense/internal/syntax"
	"github.com/jward/luasense/internal/typedef"
	"golang.org/x/sync/errgroup"
)

// Placeholder is the identifier spliced into the source at the cursor so
// the parser produces a node there.
const Placeholder = "__prefix_placeholder__"

// Module is what a file contributes to the files that require it: the
// values its top-level chunk returns and the globals it defines.
type Module struct {
	Returns []*typedef.Value
	Globals *typedef.Diff
}

// ModuleResolver supplies the analysed form of a required module.
// Implementations must treat a module they cannot produce as a non-fatal
// miss by returning an error; the requiring file sees unknown.
type ModuleResolver interface {
	Resolve(ctx context.Context, name string) (*Module, error)
}

// Options configures an Analysis.
type Options struct {
	// LuaVersion selects the dialect; see syntax.NormalizeVersion.
	LuaVersion string
	// CompleteModules gates require resolution. When false every require
	// call is unknown.
	CompleteModules bool
	// Globals is the frozen global environment. Nil means an empty one.
	Globals *typedef.Table
	// Modules resolves require targets.
	Modules ModuleResolver
	// Logger receives debug events; nil discards them.
	Logger *slog.Logger
}

// step is one entry of the extraction order: a created node, or a
// parameter binding that must be refreshed before the function body is
// visited.
type step struct {
	node  *syntax.Node
	param *paramStep
}

type paramStep struct {
	scope *Scope
	name  string
	fn    *syntax.Node
	index int
	from  int
}

// Analysis is one inference session over a single source text.
type Analysis struct {
	id   string
	opts Options
	log  *slog.Logger

	parser *syntax.Parser
	result *syntax.Result

	global  *typedef.Table
	root    *Scope
	current *Scope

	steps  []step
	nodes  []*syntax.Node
	scopes map[*syntax.Node]*Scope
	chunk  *syntax.Node

	requires     map[*syntax.Node]string
	requireOrder []string
	modules      map[string]*Module

	functions map[*syntax.Node]*typedef.Value
	tables    map[*syntax.Node]*typedef.Value
	declScope map[*syntax.Node]*Scope
	notes     map[*syntax.Node]*annotations

	placeholderIdent  *syntax.Node
	placeholderMember *syntax.Node

	docs *docIndex

	evaluated bool
	err       error
}

// New starts an analysis. Source is fed with Write and End.
func New(opts Options) *Analysis {
	opts.LuaVersion = syntax.NormalizeVersion(opts.LuaVersion)
	base := opts.Globals
	if base == nil {
		base = typedef.NewTableFields()
		base.Freeze()
	}
	overlay := typedef.NewTableFields()
	meta := typedef.NewTableFields()
	_ = meta.Set(typedef.IndexKey, typedef.NewTable(base))
	_ = overlay.SetMetatable(meta)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := uuid.NewString()

	a := &Analysis{
		id:        id,
		opts:      opts,
		log:       logger.With("session", id),
		global:    overlay,
		scopes:    make(map[*syntax.Node]*Scope),
		requires:  make(map[*syntax.Node]string),
		modules:   make(map[string]*Module),
		functions: make(map[*syntax.Node]*typedef.Value),
		tables:    make(map[*syntax.Node]*typedef.Value),
		declScope: make(map[*syntax.Node]*Scope),
		notes:     make(map[*syntax.Node]*annotations),
	}
	a.root = newGlobalScope(overlay)
	a.current = a.root
	a.parser = syntax.NewParser(a)
	return a
}

// ID returns the session id attached to this analysis' log records.
func (a *Analysis) ID() string {
	return a.id
}

// Write feeds source text without parsing it yet.
func (a *Analysis) Write(text string) error {
	return a.parser.Write(text)
}

// End feeds the final text and parses everything written. Malformed input
// is not an error: whatever was recognised is analysed.
func (a *Analysis) End(ctx context.Context, text string) error {
	res, err := a.parser.End(ctx, text)
	if err != nil {
		return fmt.Errorf("analysis: parse: %w", err)
	}
	a.result = res
	if res.HasErrors {
		a.log.Debug("parse.errors", "bytes", len(res.Source))
	}
	if a.err != nil {
		return a.err
	}
	return nil
}

// HasParseErrors reports whether part of the source could not be parsed.
func (a *Analysis) HasParseErrors() bool {
	return a.result != nil && a.result.HasErrors
}

// Requires lists the module names required with a literal argument, in
// order of first appearance.
func (a *Analysis) Requires() []string {
	return append([]string(nil), a.requireOrder...)
}

// ---------------------------------------------------------------------------
// syntax.Handler
// ---------------------------------------------------------------------------

// NodeCreated records n with the scope active at its creation.
func (a *Analysis) NodeCreated(n *syntax.Node) {
	a.nodes = append(a.nodes, n)
	a.steps = append(a.steps, step{node: n})
	a.scopes[n] = a.current

	switch n.Kind {
	case syntax.Chunk:
		a.chunk = n
	case syntax.Identifier:
		if n.Name == Placeholder && a.placeholderIdent == nil {
			a.placeholderIdent = n
		}
	case syntax.MemberExpression:
		if n.Identifier != nil && n.Identifier == a.placeholderIdent {
			a.placeholderMember = n
		}
	case syntax.CallExpression, syntax.StringCallExpression:
		if name, ok := requireTarget(n); ok {
			a.requires[n] = name
			if !a.hasRequire(name) {
				a.requireOrder = append(a.requireOrder, name)
			}
		}
	}
}

// ScopeEntered pushes a new scope.
func (a *Analysis) ScopeEntered() {
	a.current = newScope(a.current)
}

// ScopeExited pops the current scope.
func (a *Analysis) ScopeExited() {
	if a.current.parent == nil {
		a.log.Debug("scope.underflow")
		if a.err == nil {
			a.err = ErrScopeUnderflow
		}
		return
	}
	a.current = a.current.parent
}

// IdentifierBound declares name in the current scope. Parameters take the
// declared type of their position in the function's signature; everything
// else starts unknown until the extraction pass assigns it.
func (a *Analysis) IdentifierBound(name string, b syntax.Binding) {
	if name == Placeholder {
		return
	}
	if b.ParameterOf != nil {
		fn := b.ParameterOf
		if _, ok := a.declScope[fn]; !ok {
			a.declScope[fn] = a.current.parent
		}
		a.current.bind(name, a.paramType(fn, b.ParameterIndex), b.Visible)
		a.steps = append(a.steps, step{param: &paramStep{
			scope: a.current, name: name, fn: fn, index: b.ParameterIndex, from: b.Visible,
		}})
		return
	}
	a.current.bind(name, typedef.NewUnknown(), b.Visible)
}

func (a *Analysis) hasRequire(name string) bool {
	for _, r := range a.requireOrder {
		if r == name {
			return true
		}
	}
	return false
}

// requireTarget returns the module name of a require call with a single
// string literal argument.
func requireTarget(n *syntax.Node) (string, bool) {
	if n.Base == nil || n.Base.Kind != syntax.Identifier || n.Base.Name != "require" {
		return "", false
	}
	arg := n.Argument
	if n.Kind == syntax.CallExpression {
		if len(n.Arguments) != 1 {
			return "", false
		}
		arg = n.Arguments[0]
	}
	if arg == nil || arg.Kind != syntax.StringLiteral {
		return "", false
	}
	return arg.Value, true
}

// scopeOf returns the scope recorded for n, or the global scope for nodes
// that were never reported.
func (a *Analysis) scopeOf(n *syntax.Node) *Scope {
	if s, ok := a.scopes[n]; ok {
		return s
	}
	return a.root
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// evaluate merges required modules, runs the extraction pass and indexes
// doc comments. It runs once; later calls return the first outcome.
func (a *Analysis) evaluate(ctx context.Context) error {
	if a.evaluated {
		return a.err
	}
	a.evaluated = true
	if a.err != nil {
		return a.err
	}
	if err := a.mergeModules(ctx); err != nil {
		a.err = err
		return err
	}
	a.extract()
	a.docs = correlateDocs(a.nodes)
	return nil
}

// mergeModules resolves every required module concurrently, then replays
// their global side effects onto the overlay in require order. The
// overlay's own bindings from before the merge are restored afterwards so
// this file's definitions win.
func (a *Analysis) mergeModules(ctx context.Context) error {
	if len(a.requireOrder) == 0 || !a.opts.CompleteModules || a.opts.Modules == nil {
		return nil
	}
	own := a.global.Snapshot()

	resolved := make([]*Module, len(a.requireOrder))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range a.requireOrder {
		g.Go(func() error {
			m, err := a.opts.Modules.Resolve(gctx, name)
			if err != nil {
				a.log.Debug("module.miss", "module", name, "err", err)
				return nil
			}
			resolved[i] = m
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("analysis: resolve modules: %w", err)
	}

	c := typedef.NewCloner()
	for i, name := range a.requireOrder {
		m := resolved[i]
		if m == nil {
			continue
		}
		local := &Module{Returns: c.Values(m.Returns)}
		if err := m.Globals.ApplyTo(a.global, c); err != nil {
			a.log.Debug("module.globals", "module", name, "err", err)
		}
		a.modules[name] = local
	}
	if err := own.Apply(); err != nil {
		a.log.Debug("module.restore", "err", err)
	}
	return nil
}

// ReturnModule evaluates the analysis and summarises it for requiring
// files. The summary is detached from the analysis.
func (a *Analysis) ReturnModule(ctx context.Context) (*Module, error) {
	if err := a.evaluate(ctx); err != nil {
		return nil, err
	}
	var returns []*typedef.Value
	if a.chunk != nil {
		returns = a.returnTypes(a.chunk.Body)
	}
	c := typedef.NewCloner()
	return &Module{
		Returns: c.Values(returns),
		Globals: a.global.DiffWith(c),
	}, nil
}

// Global returns the analysis' global overlay.
func (a *Analysis) Global() *typedef.Table {
	return a.global
}
