// Package luasense provides code completion for Lua built on tree-sitter.
// It infers the types of Lua values (tables, functions and primitives)
// well enough to list the fields of the expression before the cursor or
// the names visible at it, including the fields of modules loaded with
// require and the standard library of the selected Lua version.
//
// # Pipeline
//
// A completion request runs one analysis over the edited source:
//
//  1. Splice: the partially typed name at the cursor is replaced by a
//     placeholder identifier, so the parser produces a node at the cursor
//     even when nothing has been typed yet.
//
//  2. Analyse: the source is parsed with tree-sitter while a scope chain is
//     built, then a type extraction pass records what each declaration and
//     assignment stores. Required modules are analysed once per Engine and
//     their return values and global side effects merged in.
//
//  3. Solve: the type of the expression before the placeholder (or the
//     scope enclosing it) is searched for names starting with the prefix.
//     Comments directly above a declaration become its description.
//
// # Usage
//
//	e, err := luasense.New(ctx,
//		luasense.WithLuaVersion("5.4"),
//		luasense.WithSearchPath(nil, "path/to/project"),
//		luasense.WithStore("luasense.db"),
//	)
//	if err != nil { ... }
//	defer e.Close()
//
//	items, err := e.Complete(ctx, luasense.Request{Source: src, Cursor: off})
//
// # Global environment
//
// The globals of each Lua version are declared by Risor scripts embedded
// under scripts/globals. Additional scripts passed with
// [WithEnvironmentScript] run afterwards and can declare the API of a host
// application. The resulting table is frozen and shared by every analysis.
//
// # Persistence
//
// With [WithStore], module summaries are kept in SQLite keyed by the hash
// of the module source, so unchanged modules are not analysed again in
// later sessions. [Engine.WarmModules] fills the store for a whole
// project in parallel.
package luasense
