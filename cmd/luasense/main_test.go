package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/luasense"
	"github.com/jward/luasense/internal/config"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	deep := filepath.Join(root, "sub", "deep")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	// TempDir has no .git directory anywhere in its ancestry
	// (unless /tmp itself is a repo, which would be unusual).
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

func TestParsePosition(t *testing.T) {
	t.Parallel()
	src := "local t = {}\nt.x = 1\n"

	off, err := parsePosition(src, "14")
	require.NoError(t, err)
	assert.Equal(t, 14, off)

	off, err = parsePosition(src, "2:3")
	require.NoError(t, err)
	assert.Equal(t, 15, off)

	_, err = parsePosition(src, "-1")
	assert.Error(t, err)
	_, err = parsePosition(src, "2:x")
	assert.Error(t, err)
	_, err = parsePosition(src, "9:1")
	assert.ErrorIs(t, err, luasense.ErrCursor)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), "json or text")
}

func TestDefaultFormat_NotATerminal(t *testing.T) {
	t.Parallel()
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "json", defaultFormat(f.Fd()))
}

func TestSuggestionToCLI(t *testing.T) {
	t.Parallel()
	got := suggestionToCLI(luasense.Suggestion{
		Name:        "format",
		Kind:        luasense.KindFunction,
		Type:        "function",
		Description: "Formats.",
		Signature: &luasense.Signature{
			Params:   []luasense.Param{{Name: "fmt", Type: "string"}, {Name: "x", Type: "unknown"}},
			Returns:  []string{"string"},
			Variadic: true,
		},
	})
	assert.Equal(t, CLISuggestion{
		Name:        "format",
		Kind:        "function",
		Type:        "function",
		Detail:      "format(fmt: string, x, ...) -> string",
		Description: "Formats.",
		Params:      []string{"fmt: string", "x"},
		Returns:     []string{"string"},
		Variadic:    true,
	}, got)

	plain := suggestionToCLI(luasense.Suggestion{Name: "pi", Kind: luasense.KindProperty, Type: "number"})
	assert.Empty(t, plain.Detail)
	assert.Nil(t, plain.Params)
}

func TestWriteResult_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := writeResult(&buf, "text", CLIResult{Command: "complete", Results: []CLISuggestion{
		{Name: "upper", Kind: "function", Type: "function", Detail: "upper(s: string) -> string", Description: "Uppercases.\nMore."},
		{Name: "pi", Kind: "property", Type: "number"},
	}})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "upper(s: string) -> string")
	assert.Contains(t, out, "Uppercases.")
	assert.NotContains(t, out, "More.")
	assert.Contains(t, out, "number")

	buf.Reset()
	require.NoError(t, writeResult(&buf, "text", CLIResult{Command: "warm", Results: CLIWarmResult{
		Root: "/src", Modules: 2, Analysed: 1, Reused: 1, Missing: []string{"gone"},
	}}))
	assert.Contains(t, buf.String(), "Modules: 2 (analysed: 1, reused: 1)")
	assert.Contains(t, buf.String(), "  gone")

	assert.Error(t, writeResult(&buf, "text", CLIResult{Results: 42}))
}

func TestWriteResult_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	count := 0
	require.NoError(t, writeResult(&buf, "json", CLIResult{Command: "modules", Results: []CLIModule{}, TotalCount: &count}))
	assert.JSONEq(t, `{"command":"modules","results":[],"total_count":0}`, buf.String())
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	require.NoError(t, cmd.Flags().Parse([]string{"--lua-version", "5.4", "--no-modules", "--path", "src/?.lua"}))

	cfg := config.Default(t.TempDir())
	applyFlags(cmd, cfg)
	assert.Equal(t, "5.4", cfg.LuaVersion)
	assert.False(t, cfg.Modules())
	assert.Equal(t, []string{"src/?.lua"}, cfg.Path)
	assert.Empty(t, cfg.GlobalsScripts)

	t.Cleanup(func() {
		flagLuaVersion = ""
		flagNoModules = false
		flagPath = nil
	})
}
