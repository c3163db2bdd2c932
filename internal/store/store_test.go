package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jward/luasense/internal/typedef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// testBundle returns a summary whose single return value is a table with
// one numeric field.
func testBundle(t *testing.T, field string) *typedef.Bundle {
	t.Helper()
	fields := typedef.NewTableFields()
	require.NoError(t, fields.Set(field, typedef.NewPrimitive(typedef.Number)))
	mod := typedef.NewTable(fields)
	return &typedef.Bundle{
		Values: []*typedef.Value{mod},
		Named:  map[string]*typedef.Value{"Exported": mod},
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"modules", "module_requires", "module_deps", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

// =============================================================================
// Modules
// =============================================================================

func TestUpsertModule_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	m := &Module{
		Name: "app.util", Path: "/src/app/util.lua", Hash: "h1",
		Summary: []byte(`{"values":[],"tables":[]}`), Requires: []string{"json", "app.log"},
		AnalyzedAt: time.Now().Truncate(time.Second),
	}
	id, err := s.UpsertModule(m)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.ModuleByName("app.util")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/src/app/util.lua", got.Path)
	assert.Equal(t, "h1", got.Hash)
	assert.Equal(t, "5.2", got.LuaVersion)
	assert.Equal(t, []string{"json", "app.log"}, got.Requires)
}

func TestUpsertModule_Replaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.UpsertModule(&Module{Name: "m", Hash: "h1", Summary: []byte("{}"), Requires: []string{"a"}})
	require.NoError(t, err)
	_, err = s.UpsertModule(&Module{Name: "m", Hash: "h2", Summary: []byte("{}")})
	require.NoError(t, err)

	all, err := s.Modules()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "h2", all[0].Hash)
	assert.Empty(t, all[0].Requires)
}

func TestModuleByName_Missing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.ModuleByName("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDependents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	for name, reqs := range map[string][]string{
		"a": {"util"},
		"b": {"util", "json"},
		"c": {"json"},
	} {
		_, err := s.UpsertModule(&Module{Name: name, Hash: "h", Summary: []byte("{}"), Requires: reqs})
		require.NoError(t, err)
	}

	deps, err := s.Dependents("util")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deps)

	deps, err = s.Dependents("util", "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, deps)
}

func TestDeleteModule(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.UpsertModule(&Module{Name: "m", Hash: "h", Summary: []byte("{}"), Requires: []string{"x"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteModule("m"))

	got, err := s.ModuleByName("m")
	require.NoError(t, err)
	assert.Nil(t, got)
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM module_requires").Scan(&n))
	assert.Zero(t, n)
}

// =============================================================================
// Summaries
// =============================================================================

func TestModuleSummary_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutModuleSummary(&Module{Name: "m", Hash: "h1"}, testBundle(t, "count")))

	b, err := s.ModuleSummary("m", "h1")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Len(t, b.Bundle.Values, 1)
	assert.True(t, b.Bundle.Values[0].Fields.Get("count").IsPrimitive(typedef.Number))
	assert.Same(t, b.Bundle.Values[0], b.Bundle.Named["Exported"])
	assert.Empty(t, b.Deps)
}

func TestModuleSummary_RecordsDependencyHashes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	deps := map[string]string{"lib": "l1", "util": "u1", "absent": ""}
	require.NoError(t, s.PutModuleSummary(&Module{Name: "app", Hash: "a1", Requires: []string{"lib"}, Deps: deps}, testBundle(t, "x")))

	b, err := s.ModuleSummary("app", "a1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, deps, b.Deps)

	require.NoError(t, s.DeleteModule("app"))
	b, err = s.ModuleSummary("app", "a1")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestModuleSummary_StaleHash(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutModuleSummary(&Module{Name: "m", Hash: "h1"}, testBundle(t, "x")))

	b, err := s.ModuleSummary("m", "h2")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPutModuleSummary_ChangedSourceDropsDependents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutModuleSummary(&Module{Name: "util", Hash: "h1"}, testBundle(t, "x")))
	require.NoError(t, s.PutModuleSummary(&Module{Name: "app", Hash: "a1", Requires: []string{"util"}}, testBundle(t, "y")))

	// Same hash: dependents survive.
	require.NoError(t, s.PutModuleSummary(&Module{Name: "util", Hash: "h1"}, testBundle(t, "x")))
	got, err := s.ModuleByName("app")
	require.NoError(t, err)
	require.NotNil(t, got)

	// New hash: app was analysed against the old util.
	require.NoError(t, s.PutModuleSummary(&Module{Name: "util", Hash: "h2"}, testBundle(t, "z")))
	got, err = s.ModuleByName("app")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutModuleSummary_ChangedSourceDropsTransitiveDependents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutModuleSummary(&Module{Name: "util", Hash: "u1"}, testBundle(t, "x")))
	require.NoError(t, s.PutModuleSummary(&Module{Name: "lib", Hash: "l1", Requires: []string{"util"},
		Deps: map[string]string{"util": "u1"}}, testBundle(t, "y")))
	require.NoError(t, s.PutModuleSummary(&Module{Name: "app", Hash: "a1", Requires: []string{"lib"},
		Deps: map[string]string{"lib": "l1", "util": "u1"}}, testBundle(t, "z")))
	require.NoError(t, s.PutModuleSummary(&Module{Name: "other", Hash: "o1"}, testBundle(t, "w")))

	require.NoError(t, s.PutModuleSummary(&Module{Name: "util", Hash: "u2"}, testBundle(t, "x")))

	mods, err := s.Modules()
	require.NoError(t, err)
	var stored []string
	for _, m := range mods {
		stored = append(stored, m.Name)
	}
	assert.Equal(t, []string{"other", "util"}, stored)
}

func TestCommitBatch_ChangedSourceDropsTransitiveDependents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutModuleSummary(&Module{Name: "util", Hash: "u1"}, testBundle(t, "x")))
	require.NoError(t, s.PutModuleSummary(&Module{Name: "lib", Hash: "l1", Requires: []string{"util"}}, testBundle(t, "y")))
	require.NoError(t, s.PutModuleSummary(&Module{Name: "app", Hash: "a1", Requires: []string{"lib"}}, testBundle(t, "z")))

	batch := NewBatchedStore(s)
	require.NoError(t, batch.PutModuleSummary(&Module{Name: "util", Hash: "u2"}, testBundle(t, "x")))
	require.NoError(t, s.CommitBatch(batch))

	for _, name := range []string{"lib", "app"} {
		got, err := s.ModuleByName(name)
		require.NoError(t, err)
		assert.Nil(t, got, name)
	}
}

func TestHashSource(t *testing.T) {
	t.Parallel()
	a := HashSource([]byte("return 1"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashSource([]byte("return 1")))
	assert.NotEqual(t, a, HashSource([]byte("return 2")))
}

// =============================================================================
// Metadata
// =============================================================================

func TestMetadata_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("environment_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("environment_hash", "abc"))
	require.NoError(t, s.SetMetadata("environment_hash", "def"))
	v, err = s.GetMetadata("environment_hash")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

func TestResetModules(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.UpsertModule(&Module{Name: "a", Hash: "h", Summary: []byte("{}"), Requires: []string{"b"}})
	require.NoError(t, err)

	require.NoError(t, s.ResetModules())
	mods, err := s.Modules()
	require.NoError(t, err)
	assert.Empty(t, mods)
	deps, err := s.Dependents("b")
	require.NoError(t, err)
	assert.Empty(t, deps)
}
