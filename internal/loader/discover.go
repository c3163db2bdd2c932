package loader

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// Module is a discovered module file.
type Module struct {
	Name string
	Path string // Relative to the root
}

var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".luarocks":    {},
	"lua_modules":  {},
	"node_modules": {},
	"build":        {},
	"dist":         {},
}

// Discover lists the modules under root that the templates can load,
// sorted by name. Inside a git checkout only tracked and unignored files
// count; elsewhere a root .gitignore is honored. Hidden entries, vendored
// rocks and symlinks are skipped. A name reachable through two files is
// reported once, for the file Load would pick.
func (l *Loader) Discover(root string) ([]Module, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	found := make(map[string]Module)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if filepath.Ext(name) != ".lua" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if gitFiles != nil {
			if _, ok := gitFiles[filepath.ToSlash(rel)]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		slash := filepath.ToSlash(rel)
		mod, ok := ModuleName(slash, l.templates)
		if !ok {
			return nil
		}
		if prev, ok := found[mod]; ok && l.rank(prev.Path, mod) <= l.rank(slash, mod) {
			return nil
		}
		found[mod] = Module{Name: mod, Path: slash}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Module, 0, len(found))
	for _, m := range found {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// rank is the index of the template that produces rel for name.
func (l *Loader) rank(rel, name string) int {
	mp, _ := modulePath(name)
	for i, tmpl := range l.templates {
		if strings.ReplaceAll(tmpl, "?", mp) == rel {
			return i
		}
	}
	return len(l.templates)
}

func gitLsFiles(root string) map[string]struct{} {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
