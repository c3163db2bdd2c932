package luasense

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jward/luasense/internal/typedef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(testContext(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeFiles creates files under dir from a path to content map.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// completeAt runs a completion for src, which marks the cursor with "|".
func completeAt(t *testing.T, e *Engine, src string, manual bool) []Suggestion {
	t.Helper()
	cursor := strings.IndexByte(src, '|')
	require.GreaterOrEqual(t, cursor, 0, "source needs a | cursor")
	got, err := e.Complete(testContext(t), Request{
		Source:            src[:cursor] + src[cursor+1:],
		Cursor:            cursor,
		ActivatedManually: manual,
	})
	require.NoError(t, err)
	return got
}

func names(ss []Suggestion) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Name
	}
	return out
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, "5.2", e.LuaVersion())
	assert.Nil(t, e.Store())
	assert.True(t, e.globals.Frozen())

	mods, err := e.Modules()
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestNew_UnsupportedVersion(t *testing.T) {
	_, err := New(testContext(t), WithLuaVersion("4.0"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "globals")
}

func TestNew_InvalidStorePath(t *testing.T) {
	_, err := New(testContext(t), WithStore("/nonexistent/dir/db.sqlite"))
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	e, err := New(testContext(t), WithStore(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	require.NotNil(t, e.Store())
	require.NoError(t, e.Close())
}

func TestWithGlobals_FreezesTable(t *testing.T) {
	g := typedef.NewTableFields()
	require.NoError(t, g.Set("answer", typedef.NewPrimitive(typedef.Number)))
	e := newTestEngine(t, WithGlobals(g))

	assert.True(t, g.Frozen())
	assert.Equal(t, []string{"answer"}, names(e.Globals("")))
}

func TestWithEnvironmentScript(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"game.risor": `
define_table("love.graphics")
define_function("love.graphics.print", ["text:string", "x:number", "y:number"])
describe("love.graphics.print", "Draws text on screen.")
`,
	})
	e := newTestEngine(t, WithEnvironmentScript(filepath.Join(dir, "game.risor")))

	got := completeAt(t, e, "love.graphics.pr|", false)
	require.Len(t, got, 1)
	assert.Equal(t, "print", got[0].Name)
	assert.Equal(t, KindFunction, got[0].Kind)
	assert.Equal(t, "Draws text on screen.", got[0].Description)
}

func TestGlobals_Prefix(t *testing.T) {
	e := newTestEngine(t)
	got := e.Globals("str")
	require.Len(t, got, 1)
	assert.Equal(t, "string", got[0].Name)
	assert.Equal(t, KindTable, got[0].Kind)
	assert.Equal(t, "String manipulation.", got[0].Description)
}

// ---------------------------------------------------------------------------
// Complete
// ---------------------------------------------------------------------------

func TestComplete_StandardLibrary(t *testing.T) {
	e := newTestEngine(t)
	got := completeAt(t, e, "string.up|", false)
	require.Len(t, got, 1)
	assert.Equal(t, "upper", got[0].Name)
	require.NotNil(t, got[0].Signature)
	assert.Equal(t, "upper(s: string) -> string", got[0].Signature.Render("upper"))
}

func TestComplete_VersionSpecificGlobals(t *testing.T) {
	e51 := newTestEngine(t, WithLuaVersion("5.1"))
	e54 := newTestEngine(t, WithLuaVersion("5.4"))

	assert.Empty(t, completeAt(t, e51, "utf8.|", false))
	assert.Contains(t, names(completeAt(t, e54, "utf8.|", false)), "len")
}

func TestComplete_MethodOnStringValue(t *testing.T) {
	e := newTestEngine(t)
	got := completeAt(t, e, "local s = 'abc'\ns:low|", false)
	require.Len(t, got, 1)
	assert.Equal(t, "lower", got[0].Name)
	assert.Equal(t, KindMethod, got[0].Kind)
	assert.Empty(t, got[0].Signature.Params, "receiver is dropped")
}

func TestComplete_RequiredModule(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"util/strings.lua": "local M = {}\n-- Trims whitespace.\nfunction M.trim(s) return s end\nreturn M",
	})
	e := newTestEngine(t, WithSearchPath(nil, dir))

	got := completeAt(t, e, "local str = require('util.strings')\nstr.|", false)
	require.Len(t, got, 1)
	assert.Equal(t, "trim", got[0].Name)
}

func TestComplete_ModulesDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"util.lua": "return { a = 1 }"})
	e := newTestEngine(t, WithSearchPath(nil, dir), WithCompleteModules(false))

	assert.Empty(t, completeAt(t, e, "local u = require('util')\nu.|", false))
}

func TestComplete_MissingModule(t *testing.T) {
	e := newTestEngine(t, WithSearchPath(nil, t.TempDir()))
	got := completeAt(t, e, "local u = require('nope')\nlocal t = { x = 1 }\nt.|", false)
	assert.Equal(t, []string{"x"}, names(got))
}

func TestInvalidateModules_ReloadsSource(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"util.lua": "return { a = 1 }"})
	e := newTestEngine(t, WithSearchPath(nil, dir))
	src := "local u = require('util')\nu.|"

	assert.Equal(t, []string{"a"}, names(completeAt(t, e, src, false)))

	writeFiles(t, dir, map[string]string{"util.lua": "return { a = 1, b = 2 }"})
	assert.Equal(t, []string{"a"}, names(completeAt(t, e, src, false)), "cached until invalidated")

	require.NoError(t, e.InvalidateModules("util"))
	assert.Equal(t, []string{"a", "b"}, names(completeAt(t, e, src, false)))
}

func TestComplete_WhitespaceNeedsManualActivation(t *testing.T) {
	e := newTestEngine(t)
	src := "local alpha = 1\n|"

	assert.Nil(t, completeAt(t, e, src, false))
	assert.Contains(t, names(completeAt(t, e, src, true)), "alpha")
}

func TestComplete_ManualInsideWord(t *testing.T) {
	e := newTestEngine(t)
	got := completeAt(t, e, "local alpha = 1\nlocal t = { x = al|pha }", true)
	assert.Equal(t, []string{"alpha"}, names(got))
}

func TestComplete_ConcatenationIsNotATrigger(t *testing.T) {
	e := newTestEngine(t)
	assert.Nil(t, completeAt(t, e, "local s = 'a' ..|", false))
}

func TestComplete_NumberLiteral(t *testing.T) {
	e := newTestEngine(t)
	assert.Nil(t, completeAt(t, e, "local n = 12|", false))
}

func TestComplete_ExplicitPrefix(t *testing.T) {
	e := newTestEngine(t)
	src := "local t = { alpha = 1, beta = 2 }\nt.al"

	got, err := e.Complete(testContext(t), Request{Source: src, Cursor: len(src), Prefix: "al"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, names(got))

	src = "local t = { alpha = 1, beta = 2 }\nt."
	got, err = e.Complete(testContext(t), Request{Source: src, Cursor: len(src), Prefix: "."})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names(got))
}

func TestComplete_CursorOutOfRange(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Complete(testContext(t), Request{Source: "x", Cursor: 2})
	assert.ErrorIs(t, err, ErrCursor)

	_, err = e.Complete(testContext(t), Request{Source: "x", Cursor: -1})
	assert.ErrorIs(t, err, ErrCursor)

	_, err = e.Complete(testContext(t), Request{Source: "x", Cursor: 1, Prefix: "long"})
	assert.ErrorIs(t, err, ErrCursor)
}

func TestComplete_PrefixMustEndAtCursor(t *testing.T) {
	e := newTestEngine(t)
	src := "local t = { alpha = 1 }
t.xy"

	_, err := e.Complete(testContext(t), Request{Source: src, Cursor: len(src), Prefix: "al"})
	assert.ErrorIs(t, err, ErrCursor)

	_, err = e.Complete(testContext(t), Request{Source: src, Cursor: len(src), Prefix: "t.x"})
	assert.ErrorIs(t, err, ErrCursor)

	_, err = e.Complete(testContext(t), Request{Source: src, Cursor: len(src), Prefix: "xy"})
	require.NoError(t, err)

	_, err = e.Complete(testContext(t), Request{Source: src, Cursor: len(src) - 2, Prefix: ":"})
	assert.ErrorIs(t, err, ErrCursor)
}

func TestComplete_MalformedSource(t *testing.T) {
	e := newTestEngine(t)
	got := completeAt(t, e, "local t = { a = 1 }\nt.|\nlocal z =", false)
	assert.Equal(t, []string{"a"}, names(got))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestOffset(t *testing.T) {
	src := "ab\ncde\n\nf"
	cases := []struct {
		line, col int
		want      int
	}{
		{1, 1, 0},
		{1, 3, 2},
		{2, 1, 3},
		{2, 3, 5},
		{2, 99, 6},
		{3, 1, 7},
		{4, 2, 9},
	}
	for _, tc := range cases {
		got, err := Offset(src, tc.line, tc.col)
		require.NoError(t, err, "%d:%d", tc.line, tc.col)
		assert.Equal(t, tc.want, got, "%d:%d", tc.line, tc.col)
	}

	_, err := Offset(src, 5, 1)
	assert.ErrorIs(t, err, ErrCursor)
	_, err = Offset(src, 0, 1)
	assert.ErrorIs(t, err, ErrCursor)
}

func TestOperatorBefore(t *testing.T) {
	cases := map[string]string{
		"t.":     ".",
		"t:":     ":",
		"a ..":   "",
		"::":     "",
		"x":      "",
		"":       "",
		"f().":   ".",
		"s:sub:": ":",
	}
	for src, want := range cases {
		assert.Equal(t, want, operatorBefore(src, len(src)), src)
	}
}
