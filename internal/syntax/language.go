package syntax

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/lua"
)

// extToLanguage maps file extensions to language names understood here.
var extToLanguage = map[string]string{
	".lua": "lua",
}

// Lazily initialized on first call via sync.Once.
var (
	luaGrammar  *sitter.Language
	grammarOnce sync.Once
)

// Grammar returns the tree-sitter Lua grammar.
func Grammar() *sitter.Language {
	grammarOnce.Do(func() {
		luaGrammar = lua.GetLanguage()
	})
	return luaGrammar
}

// LanguageForFile returns the language name for a file path based on its
// extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// NormalizeVersion maps a configured Lua version to the dialect it is
// analysed as. LuaJIT follows 5.1; empty means 5.2.
func NormalizeVersion(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return "5.2"
	case "luajit", "luajit-2.0", "luajit-2.1":
		return "5.1"
	default:
		return v
	}
}
