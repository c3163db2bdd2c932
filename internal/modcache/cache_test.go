package modcache

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jward/luasense/internal/analysis"
	"github.com/jward/luasense/internal/loader"
	"github.com/jward/luasense/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// mapLoader serves module sources from memory and counts loads.
type mapLoader struct {
	mu    sync.Mutex
	files map[string]string
	loads map[string]int
}

func newMapLoader(files map[string]string) *mapLoader {
	return &mapLoader{files: files, loads: make(map[string]int)}
}

func (m *mapLoader) Load(_ context.Context, name string) (*loader.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads[name]++
	text, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", loader.ErrNotFound, name)
	}
	return &loader.Source{Name: name, Path: name + ".lua", Text: []byte(text)}, nil
}

func (m *mapLoader) set(name, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = text
}

func (m *mapLoader) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads[name]
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func returnedFields(t *testing.T, m *analysis.Module) []string {
	t.Helper()
	require.NotNil(t, m)
	require.NotEmpty(t, m.Returns)
	require.True(t, m.Returns[0].IsTable(), "module returns %s", m.Returns[0])
	return m.Returns[0].Fields.Keys()
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "modules.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

var opts = analysis.Options{LuaVersion: "5.2", CompleteModules: true}

// =============================================================================
// Caching
// =============================================================================

func TestResolve_AnalysesOnce(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{"util": "local M = {}\nM.x = 1\nreturn M"})
	c := New(l, opts, nil)

	first, err := c.Resolve(testContext(t), "util")
	require.NoError(t, err)
	second, err := c.Resolve(testContext(t), "util")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"x"}, returnedFields(t, first))
	assert.Equal(t, 1, l.count("util"))
	analysed, _ := c.Stats()
	assert.Equal(t, 1, analysed)
}

func TestResolve_ConcurrentRequestsShareOneAnalysis(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{"util": "return { a = 1, b = 'x' }"})
	c := New(l, opts, nil)
	ctx := testContext(t)

	results := make([]*analysis.Module, 16)
	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		g.Go(func() error {
			m, err := c.Resolve(gctx, "util")
			results[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, m := range results {
		assert.Same(t, results[0], m)
	}
	assert.Equal(t, 1, l.count("util"))
}

func TestResolve_MissIsNotCached(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{})
	c := New(l, opts, nil)

	_, err := c.Resolve(testContext(t), "later")
	require.ErrorIs(t, err, loader.ErrNotFound)
	_, err = c.Resolve(testContext(t), "later")
	require.ErrorIs(t, err, loader.ErrNotFound)
	assert.Equal(t, 2, l.count("later"))

	l.set("later", "return { ready = true }")
	m, err := c.Resolve(testContext(t), "later")
	require.NoError(t, err)
	assert.Equal(t, []string{"ready"}, returnedFields(t, m))
}

func TestResolve_NestedRequires(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{
		"base": "return { greet = function(name) return 'hi' end }",
		"app":  "local base = require('base')\nlocal M = { base = base }\nreturn M",
	})
	c := New(l, opts, nil)

	m, err := c.Resolve(testContext(t), "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, returnedFields(t, m))
	base := m.Returns[0].Fields.Get("base")
	require.True(t, base.IsTable())
	assert.Equal(t, []string{"greet"}, base.Fields.Keys())
	assert.Equal(t, 1, l.count("base"))
}

func TestResolve_ModuleGlobals(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{"setup": "Config = { debug = false }"})
	c := New(l, opts, nil)

	m, err := c.Resolve(testContext(t), "setup")
	require.NoError(t, err)
	assert.Equal(t, []string{"Config"}, m.Globals.Keys())
}

func TestInvalidate_Reloads(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{"m": "return { old = 1 }"})
	c := New(l, opts, nil)

	_, err := c.Resolve(testContext(t), "m")
	require.NoError(t, err)

	l.set("m", "return { new = 1 }")
	c.Invalidate("m", "unknown")
	m, err := c.Resolve(testContext(t), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, returnedFields(t, m))
	assert.Equal(t, 2, l.count("m"))
}

// =============================================================================
// Cycles
// =============================================================================

func TestResolve_SelfRequire(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{"loop": "local me = require('loop')\nreturn { x = 1 }"})
	c := New(l, opts, nil)

	m, err := c.Resolve(testContext(t), "loop")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, returnedFields(t, m))
}

func TestResolve_CycleInOneChain(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{
		"a": "local b = require('b')\nreturn { fromA = 1 }",
		"b": "local a = require('a')\nreturn { fromB = 1 }",
	})
	c := New(l, opts, nil)

	m, err := c.Resolve(testContext(t), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"fromA"}, returnedFields(t, m))
	assert.Equal(t, 1, l.count("a"))
	assert.Equal(t, 1, l.count("b"))
}

func TestResolve_ConcurrentCycleDoesNotDeadlock(t *testing.T) {
	t.Parallel()
	l := newMapLoader(map[string]string{
		"a": "local b = require('b')\nreturn { fromA = 1 }",
		"b": "local c = require('c')\nreturn { fromB = 1 }",
		"c": "local a = require('a')\nreturn { fromC = 1 }",
	})
	c := New(l, opts, nil)
	ctx := testContext(t)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range []string{"a", "b", "c"} {
		g.Go(func() error {
			_, err := c.Resolve(gctx, name)
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.NoError(t, ctx.Err())

	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, l.count(name), name)
	}
}

func TestWaitGraph(t *testing.T) {
	t.Parallel()
	g := make(waitGraph)
	g.add("a", "b")
	g.add("b", "c")
	g.add("b", "c")

	assert.True(t, g.reaches("a", "c"))
	assert.False(t, g.reaches("c", "a"))

	g.remove("b", "c")
	assert.True(t, g.reaches("a", "c"))
	g.remove("b", "c")
	assert.False(t, g.reaches("a", "c"))
	assert.NotContains(t, g, "b")
}

func TestChainContext(t *testing.T) {
	t.Parallel()
	ctx := withChain(context.Background(), "a")
	left := withChain(ctx, "b")
	right := withChain(ctx, "c")

	assert.Equal(t, []string{"a", "b"}, chainFrom(left))
	assert.Equal(t, []string{"a", "c"}, chainFrom(right))
	assert.Empty(t, chainFrom(context.Background()))
}

// =============================================================================
// Store
// =============================================================================

func TestResolve_ReusesStoredSummary(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	files := map[string]string{"util": "local M = {}\nfunction M.trim(s) return s end\nreturn M"}

	first := New(newMapLoader(files), opts, s)
	_, err := first.Resolve(testContext(t), "util")
	require.NoError(t, err)

	second := New(newMapLoader(files), opts, s)
	m, err := second.Resolve(testContext(t), "util")
	require.NoError(t, err)
	assert.Equal(t, []string{"trim"}, returnedFields(t, m))

	analysed, stored := second.Stats()
	assert.Equal(t, 0, analysed)
	assert.Equal(t, 1, stored)

	rec, err := s.ModuleByName("util")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "5.2", rec.LuaVersion)
}

func TestResolve_ChangedSourceReanalyses(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := New(newMapLoader(map[string]string{"m": "return { a = 1 }"}), opts, s).
		Resolve(testContext(t), "m")
	require.NoError(t, err)

	c := New(newMapLoader(map[string]string{"m": "return { b = 1 }"}), opts, s)
	m, err := c.Resolve(testContext(t), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, returnedFields(t, m))
	analysed, stored := c.Stats()
	assert.Equal(t, 1, analysed)
	assert.Equal(t, 0, stored)
}

func TestResolve_RecordsRequires(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	l := newMapLoader(map[string]string{
		"base": "return {}",
		"app":  "require('base')\nreturn {}",
	})
	_, err := New(l, opts, s).Resolve(testContext(t), "app")
	require.NoError(t, err)

	deps, err := s.Dependents("base")
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, deps)
}

func TestResolve_ChangedDependencyReanalysesDependents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	files := map[string]string{
		"b": "return { x = 1 }",
		"a": "local b = require('b')\nreturn { b = b }",
		"c": "local a = require('a')\nreturn { a = a }",
	}
	_, err := New(newMapLoader(files), opts, s).Resolve(testContext(t), "c")
	require.NoError(t, err)

	rec, err := s.ModuleByName("c")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"a", "b"}, sortedKeys(rec.Deps))

	// Unchanged sources: everything comes from the store.
	same := New(newMapLoader(files), opts, s)
	_, err = same.Resolve(testContext(t), "c")
	require.NoError(t, err)
	analysed, stored := same.Stats()
	assert.Equal(t, 0, analysed)
	assert.Equal(t, 1, stored)

	l := newMapLoader(files)
	l.set("b", "return { y = 1 }")
	c := New(l, opts, s)
	m, err := c.Resolve(testContext(t), "c")
	require.NoError(t, err)
	require.NotEmpty(t, m.Returns)
	b := m.Returns[0].Fields.Get("a").Fields.Get("b")
	require.True(t, b.IsTable())
	assert.Equal(t, []string{"y"}, b.Fields.Keys())

	analysed, stored = c.Stats()
	assert.Equal(t, 3, analysed)
	assert.Equal(t, 0, stored)
}

func TestResolve_AppearedDependencyReanalyses(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	files := map[string]string{"app": "local x = require('later')\nreturn { x = x }"}
	_, err := New(newMapLoader(files), opts, s).Resolve(testContext(t), "app")
	require.NoError(t, err)

	l := newMapLoader(files)
	l.set("later", "return { ready = true }")
	c := New(l, opts, s)
	m, err := c.Resolve(testContext(t), "app")
	require.NoError(t, err)
	require.NotEmpty(t, m.Returns)
	x := m.Returns[0].Fields.Get("x")
	require.True(t, x.IsTable())
	assert.Equal(t, []string{"ready"}, x.Fields.Keys())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
