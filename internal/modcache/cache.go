// Package modcache resolves required modules for analyses. Each module is
// loaded and analysed at most once per Cache: concurrent requests for a
// module that is being analysed wait for that analysis instead of starting
// another. Summaries are persisted through a store keyed by source hash so
// later sessions skip unchanged modules. A stored summary also records the
// source hash of every module it was built from, directly or through other
// modules, and is reused only while all of them still match.
//
// Requires can form cycles. A module that requires itself through a chain
// of requires gets an empty module at the point the chain closes, both when
// the chain runs in one goroutine and when it spans concurrent analyses
// waiting on each other.
package modcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jward/luasense/internal/analysis"
	"github.com/jward/luasense/internal/loader"
	"github.com/jward/luasense/internal/store"
	"github.com/jward/luasense/internal/typedef"
)

// Loader supplies module source text. A module that does not exist is
// reported with an error wrapping loader.ErrNotFound.
type Loader interface {
	Load(ctx context.Context, name string) (*loader.Source, error)
}

// Cache implements analysis.ModuleResolver.
type Cache struct {
	loader Loader
	opts   analysis.Options
	store  store.SummaryStore
	log    *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	waits   waitGraph

	analyses int
	stored   int
}

type entry struct {
	done chan struct{}
	mod  *analysis.Module
	err  error

	// Set under Cache.mu. hash is known once the source is read; deps once
	// the module is complete.
	hash string
	deps map[string]string
}

var _ analysis.ModuleResolver = (*Cache)(nil)

// New returns a Cache that loads sources with l and analyses them with
// opts. opts.Modules is replaced by the Cache itself so nested requires go
// through it too. s may be nil.
func New(l Loader, opts analysis.Options, s store.SummaryStore) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Cache{
		loader:  l,
		store:   s,
		log:     logger,
		entries: make(map[string]*entry),
		waits:   make(waitGraph),
	}
	opts.Modules = c
	c.opts = opts
	return c
}

// Resolve returns the module summary for name.
func (c *Cache) Resolve(ctx context.Context, name string) (*analysis.Module, error) {
	chain := chainFrom(ctx)
	for _, n := range chain {
		if n == name {
			c.log.Debug("module.cycle", "module", name, "chain", chain)
			return emptyModule(), nil
		}
	}
	from := ""
	if len(chain) > 0 {
		from = chain[len(chain)-1]
	}

	c.mu.Lock()
	if e, ok := c.entries[name]; ok {
		select {
		case <-e.done:
			c.mu.Unlock()
			return e.mod, e.err
		default:
		}
		if from != "" {
			if c.waits.reaches(name, from) {
				c.mu.Unlock()
				c.log.Debug("module.cycle", "module", name, "waiter", from)
				return emptyModule(), nil
			}
			c.waits.add(from, name)
		}
		c.mu.Unlock()
		defer c.unwait(from, name)

		select {
		case <-e.done:
			return e.mod, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e := &entry{done: make(chan struct{})}
	c.entries[name] = e
	if from != "" {
		c.waits.add(from, name)
	}
	c.mu.Unlock()
	defer c.unwait(from, name)

	e.mod, e.err = c.load(withChain(ctx, name), name, e)

	c.mu.Lock()
	if e.err != nil && (errors.Is(e.err, loader.ErrNotFound) || ctx.Err() != nil) {
		// Misses are not remembered: the file may appear later.
		delete(c.entries, name)
	}
	c.mu.Unlock()
	close(e.done)
	return e.mod, e.err
}

func (c *Cache) unwait(from, name string) {
	if from == "" {
		return
	}
	c.mu.Lock()
	c.waits.remove(from, name)
	c.mu.Unlock()
}

// load fetches, hashes and analyses name. Analysis failures yield an empty
// module; only a missing source is an error.
func (c *Cache) load(ctx context.Context, name string, e *entry) (*analysis.Module, error) {
	src, err := c.loader.Load(ctx, name)
	if err != nil {
		c.log.Debug("module.load", "module", name, "err", err)
		return nil, fmt.Errorf("modcache: load %q: %w", name, err)
	}
	hash := store.HashSource(src.Text)
	c.mu.Lock()
	e.hash = hash
	c.mu.Unlock()

	if c.store != nil {
		sum, err := c.store.ModuleSummary(name, hash)
		switch {
		case err != nil:
			c.log.Debug("module.store_read", "module", name, "err", err)
		case sum == nil:
		case !c.depsCurrent(ctx, sum.Deps):
			c.log.Debug("module.stale_deps", "module", name)
		default:
			c.mu.Lock()
			c.stored++
			e.deps = sum.Deps
			c.mu.Unlock()
			c.log.Debug("module.stored", "module", name)
			return fromBundle(sum.Bundle), nil
		}
	}

	c.mu.Lock()
	c.analyses++
	c.mu.Unlock()

	a := analysis.New(c.opts)
	c.log.Debug("module.analyse", "module", name, "path", src.Path, "analysis", a.ID())
	if err := a.End(ctx, string(src.Text)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Debug("module.failed", "module", name, "err", err)
		return emptyModule(), nil
	}
	mod, err := a.ReturnModule(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Debug("module.failed", "module", name, "err", err)
		return emptyModule(), nil
	}

	deps := c.depsOf(name, a.Requires())
	c.mu.Lock()
	e.deps = deps
	c.mu.Unlock()

	if c.store != nil {
		rec := &store.Module{
			Name:       name,
			Path:       src.Path,
			Hash:       hash,
			LuaVersion: c.opts.LuaVersion,
			Requires:   a.Requires(),
			Deps:       deps,
		}
		if err := c.store.PutModuleSummary(rec, toBundle(mod)); err != nil {
			c.log.Debug("module.store_write", "module", name, "err", err)
		}
	}
	return mod, nil
}

// depsOf collects the source hashes a summary of name depends on: each
// required module's own hash plus whatever that module depended on. A
// require with no entry was not found and is recorded as "".
func (c *Cache) depsOf(name string, requires []string) map[string]string {
	deps := make(map[string]string)
	if !c.opts.CompleteModules {
		return deps
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range requires {
		if req == name {
			continue
		}
		e, ok := c.entries[req]
		if !ok {
			deps[req] = ""
			continue
		}
		deps[req] = e.hash
		for dep, hash := range e.deps {
			if dep != name {
				deps[dep] = hash
			}
		}
	}
	return deps
}

// depsCurrent reports whether every recorded dependency still has the
// source hash it had when the summary was built.
func (c *Cache) depsCurrent(ctx context.Context, deps map[string]string) bool {
	for dep, want := range deps {
		got := ""
		src, err := c.loader.Load(ctx, dep)
		switch {
		case err == nil:
			got = store.HashSource(src.Text)
		case !errors.Is(err, loader.ErrNotFound):
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

// Invalidate forgets the completed results for names so the next Resolve
// reloads them. In-flight loads are left alone.
func (c *Cache) Invalidate(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		e, ok := c.entries[name]
		if !ok {
			continue
		}
		select {
		case <-e.done:
			delete(c.entries, name)
		default:
		}
	}
}

// Stats reports how many modules were analysed and how many were served
// from the store.
func (c *Cache) Stats() (analysed, stored int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyses, c.stored
}

func emptyModule() *analysis.Module {
	return &analysis.Module{Globals: &typedef.Diff{Entries: map[string]*typedef.Value{}}}
}

func toBundle(m *analysis.Module) *typedef.Bundle {
	b := &typedef.Bundle{Values: m.Returns}
	if m.Globals != nil {
		b.Named = m.Globals.Entries
	}
	return b
}

func fromBundle(b *typedef.Bundle) *analysis.Module {
	named := b.Named
	if named == nil {
		named = map[string]*typedef.Value{}
	}
	return &analysis.Module{Returns: b.Values, Globals: &typedef.Diff{Entries: named}}
}
