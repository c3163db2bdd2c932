// Package config reads .luasense.yaml project configuration.
//
// The file is optional. It is found by walking up from the working
// directory, and relative paths in it are resolved against the directory
// that holds it. Command-line flags override what it sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/luasense/internal/loader"
	"github.com/jward/luasense/internal/runtime"
)

// FileName is the configuration file looked for in each directory.
const FileName = ".luasense.yaml"

// Config is the project configuration.
type Config struct {
	// LuaVersion selects the dialect and the globals script: 5.1, 5.2, 5.3,
	// 5.4 or luajit. Defaults to 5.2.
	LuaVersion string `yaml:"lua_version,omitempty"`

	// CompleteModules turns require resolution on or off. Defaults to true.
	CompleteModules *bool `yaml:"complete_modules,omitempty"`

	// Path lists package.path style templates tried for each root, such as
	// "?.lua" or "lib/?/init.lua". Defaults to loader.DefaultTemplates.
	Path []string `yaml:"path,omitempty"`

	// Roots are the directories module names are resolved against.
	// Defaults to the directory holding the config file.
	Roots []string `yaml:"roots,omitempty"`

	// GlobalsScripts are Risor environment scripts run after the built-in
	// globals of the selected version, in order.
	GlobalsScripts []string `yaml:"globals_scripts,omitempty"`

	// DB is the SQLite file module summaries are kept in. Empty keeps them
	// in memory only.
	DB string `yaml:"db,omitempty"`

	// Dir is the directory relative paths were resolved against.
	Dir string `yaml:"-"`
}

// Default returns the configuration used without a file, rooted at dir.
func Default(dir string) *Config {
	cfg := &Config{Dir: dir}
	cfg.setDefaults()
	return cfg
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses config content. path locates the file: it is used for
// error messages and to resolve relative paths.
func Parse(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(abs)
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	cfg.resolvePaths()
	return &cfg, nil
}

// Find searches for FileName starting from dir and walking up to parent
// directories. It returns "" without error when there is none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Discover loads the config found from dir upward, or the defaults rooted
// at dir.
func Discover(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving directory: %w", err)
		}
		return Default(abs), nil
	}
	return Load(path)
}

// Modules reports whether require targets are resolved.
func (c *Config) Modules() bool {
	return c.CompleteModules == nil || *c.CompleteModules
}

// SetModules overrides CompleteModules.
func (c *Config) SetModules(on bool) {
	c.CompleteModules = &on
}

func (c *Config) validate(path string) error {
	if c.LuaVersion != "" && !runtime.SupportedVersion(c.LuaVersion) {
		return fmt.Errorf("%s: unsupported lua_version %q", path, c.LuaVersion)
	}
	for i, tmpl := range c.Path {
		if filepath.IsAbs(tmpl) {
			return fmt.Errorf("%s: path[%d]: template %q must be relative to a root", path, i, tmpl)
		}
		if !strings.Contains(tmpl, "?") {
			return fmt.Errorf("%s: path[%d]: template %q has no '?'", path, i, tmpl)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.LuaVersion == "" {
		c.LuaVersion = "5.2"
	}
	if len(c.Path) == 0 {
		c.Path = append([]string(nil), loader.DefaultTemplates...)
	}
	if len(c.Roots) == 0 && c.Dir != "" {
		c.Roots = []string{c.Dir}
	}
}

func (c *Config) resolvePaths() {
	for i, r := range c.Roots {
		c.Roots[i] = c.abs(r)
	}
	for i, s := range c.GlobalsScripts {
		c.GlobalsScripts[i] = c.abs(s)
	}
	if c.DB != "" {
		c.DB = c.abs(c.DB)
	}
}

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}
