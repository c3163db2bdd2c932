// Package scripts embeds the environment scripts that declare the Lua
// standard library for each supported version.
package scripts

import "embed"

// FS holds globals/base.risor and one globals/<version>.risor per Lua
// version.
//
//go:embed globals/*.risor
var FS embed.FS
