// Package loader finds Lua module sources on disk the way require does:
// a dotted module name is substituted into path templates that are tried
// against each search root in turn.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no template yields a readable file.
var ErrNotFound = errors.New("loader: module not found")

// DefaultTemplates mirror Lua's default package.path entries relative to a
// root.
var DefaultTemplates = []string{"?.lua", "?/init.lua"}

// Source is a loaded module.
type Source struct {
	Name string
	Path string
	Text []byte
}

// Loader resolves module names against search roots.
type Loader struct {
	roots     []string
	templates []string
}

// New returns a Loader over roots. Empty templates select DefaultTemplates.
func New(templates []string, roots ...string) *Loader {
	if len(templates) == 0 {
		templates = DefaultTemplates
	}
	return &Loader{
		roots:     append([]string(nil), roots...),
		templates: append([]string(nil), templates...),
	}
}

// Roots returns the search roots in lookup order.
func (l *Loader) Roots() []string {
	return append([]string(nil), l.roots...)
}

// Templates returns the path templates in lookup order.
func (l *Loader) Templates() []string {
	return append([]string(nil), l.templates...)
}

// Load reads the first file matching name. Roots are tried in order, and
// within a root the templates are tried in order.
func (l *Loader) Load(ctx context.Context, name string) (*Source, error) {
	rel, ok := modulePath(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	for _, root := range l.roots {
		for _, tmpl := range l.templates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			path := filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(tmpl, "?", rel)))
			text, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) || isDirErr(path) {
					continue
				}
				return nil, fmt.Errorf("loader: read %s: %w", path, err)
			}
			return &Source{Name: name, Path: path, Text: text}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// modulePath turns a.b.c into a/b/c. Names with empty segments or path
// syntax are rejected.
func modulePath(name string) (string, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}
	return strings.Join(parts, "/"), true
}

// ModuleName maps a slash-separated path relative to a root back to the
// module name that loads it. When several templates match, the shortest
// name wins, so a/init.lua is "a" rather than "a.init".
func ModuleName(rel string, templates []string) (string, bool) {
	if len(templates) == 0 {
		templates = DefaultTemplates
	}
	best := ""
	for _, tmpl := range templates {
		prefix, suffix, ok := strings.Cut(tmpl, "?")
		if !ok || !strings.HasPrefix(rel, prefix) || !strings.HasSuffix(rel, suffix) {
			continue
		}
		if len(rel) <= len(prefix)+len(suffix) {
			continue
		}
		middle := rel[len(prefix) : len(rel)-len(suffix)]
		if strings.Contains(middle, ".") {
			continue
		}
		name := strings.ReplaceAll(middle, "/", ".")
		if _, ok := modulePath(name); !ok {
			continue
		}
		if best == "" || len(name) < len(best) {
			best = name
		}
	}
	return best, best != ""
}

func isDirErr(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
