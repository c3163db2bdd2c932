package runtime

import (
	"errors"
	"path"
	"slices"

	"github.com/jward/luasense/internal/syntax"
)

// ErrUnsupportedVersion is returned for a Lua version without a globals
// script.
var ErrUnsupportedVersion = errors.New("runtime: unsupported Lua version")

// BaseScriptPath is the script defining the globals every version shares.
const BaseScriptPath = "globals/base.risor"

// Versions lists the Lua versions with a globals script.
var Versions = []string{"5.1", "5.2", "5.3", "5.4"}

// GlobalsScriptPath returns the path of a version's globals script within
// the scripts FS. Version aliases such as luajit are normalized first.
func GlobalsScriptPath(version string) string {
	return path.Join("globals", syntax.NormalizeVersion(version)+".risor")
}

// SupportedVersion reports whether version, after normalization, has a
// globals script.
func SupportedVersion(version string) bool {
	return slices.Contains(Versions, syntax.NormalizeVersion(version))
}
