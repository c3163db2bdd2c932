package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func names(mods []Module) []string {
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.Name
	}
	return out
}

// =============================================================================
// Load
// =============================================================================

func TestLoad_DottedNameUsesTemplates(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "net/http.lua", "return {}")
	writeFile(t, root, "util/init.lua", "return { init = true }")

	l := New(nil, root)

	src, err := l.Load(context.Background(), "net.http")
	require.NoError(t, err)
	assert.Equal(t, "net.http", src.Name)
	assert.Equal(t, filepath.Join(root, "net", "http.lua"), src.Path)
	assert.Equal(t, "return {}", string(src.Text))

	src, err = l.Load(context.Background(), "util")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "util", "init.lua"), src.Path)
}

func TestLoad_RootsInOrder(t *testing.T) {
	t.Parallel()
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, first, "a.lua", "return 1")
	writeFile(t, second, "a.lua", "return 2")
	writeFile(t, second, "b.lua", "return 3")

	l := New(nil, first, second)

	src, err := l.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "return 1", string(src.Text))

	src, err = l.Load(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "return 3", string(src.Text))
}

func TestLoad_TemplateOrderWithinRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "a.lua", "return 'file'")
	writeFile(t, root, "a/init.lua", "return 'dir'")

	src, err := New(nil, root).Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "return 'file'", string(src.Text))
}

func TestLoad_CustomTemplates(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "lib/mod.lua", "return {}")

	_, err := New(nil, root).Load(context.Background(), "mod")
	assert.ErrorIs(t, err, ErrNotFound)

	src, err := New([]string{"lib/?.lua"}, root).Load(context.Background(), "mod")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "lib", "mod.lua"), src.Path)
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "dir/x.lua", "")

	l := New(nil, root)
	for _, name := range []string{"missing", "", "a..b", "../etc", "dir"} {
		_, err := l.Load(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "a.lua", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil, root).Load(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModuleName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		rel       string
		templates []string
		want      string
		ok        bool
	}{
		{"a.lua", nil, "a", true},
		{"a/b/c.lua", nil, "a.b.c", true},
		{"a/init.lua", nil, "a", true},
		{"init.lua", nil, "init", true},
		{"a.b.lua", nil, "", false},
		{"readme.md", nil, "", false},
		{"lib/x.lua", []string{"lib/?.lua"}, "x", true},
		{"src/x.lua", []string{"lib/?.lua"}, "", false},
	}
	for _, tc := range cases {
		got, ok := ModuleName(tc.rel, tc.templates)
		assert.Equal(t, tc.ok, ok, tc.rel)
		assert.Equal(t, tc.want, got, tc.rel)
	}
}

// =============================================================================
// Discover
// =============================================================================

func TestDiscover_ListsModules(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "main.lua", "")
	writeFile(t, root, "lib/util.lua", "")
	writeFile(t, root, "pkg/init.lua", "")
	writeFile(t, root, "readme.txt", "")
	writeFile(t, root, ".hidden.lua", "")

	mods, err := New(nil, root).Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib.util", "main", "pkg"}, names(mods))
	assert.Equal(t, "pkg/init.lua", mods[2].Path)
}

func TestDiscover_SkipDirs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "main.lua", "")
	writeFile(t, root, "lua_modules/dep.lua", "")
	writeFile(t, root, ".luarocks/rock.lua", "")
	writeFile(t, root, ".cache/x.lua", "")

	mods, err := New(nil, root).Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, names(mods))
}

func TestDiscover_Gitignore(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\nscratch.lua\n")
	writeFile(t, root, "main.lua", "")
	writeFile(t, root, "scratch.lua", "")
	writeFile(t, root, "generated/out.lua", "")

	mods, err := New(nil, root).Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, names(mods))
}

func TestDiscover_PrefersLoadOrder(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "a.lua", "")
	writeFile(t, root, "a/init.lua", "")

	mods, err := New(nil, root).Discover(root)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, Module{Name: "a", Path: "a.lua"}, mods[0])
}
