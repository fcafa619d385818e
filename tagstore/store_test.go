package tagstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tagger/tags"
	"tagger/types"
)

type testStore interface {
	types.Store
	types.Creator
}

// Run against every backend that works without a server.
func forEachStore(t *testing.T, fn func(t *testing.T, st testStore)) {
	t.Run("mem", func(t *testing.T) {
		st := NewMem()
		defer st.Close()
		fn(t, st)
	})

	t.Run("sqlite", func(t *testing.T) {
		l := zerolog.Nop()
		st, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "tags.db"), &l)
		require.NoError(t, err)
		defer st.Close()
		fn(t, st)
	})
}

func TestStoreUnsetAndEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, st testStore) {
		ctx := context.Background()
		e := tags.Entity{Scope: "Scene", ID: "Cube"}

		require.NoError(t, st.CreateEntity(ctx, e, nil))

		got, set, err := st.ReadTags(ctx, e)
		require.NoError(t, err)
		assert.False(t, set)
		assert.Empty(t, got)

		require.NoError(t, st.WriteTags(ctx, e, tags.Tags{"red", "box"}))

		got, set, err = st.ReadTags(ctx, e)
		require.NoError(t, err)
		assert.True(t, set)
		assert.Equal(t, tags.Tags{"red", "box"}, got)

		// An empty list is still set, only ClearTags unsets.
		require.NoError(t, st.WriteTags(ctx, e, tags.Tags{}))
		_, set, err = st.ReadTags(ctx, e)
		require.NoError(t, err)
		assert.True(t, set)

		require.NoError(t, st.ClearTags(ctx, e))
		_, set, err = st.ReadTags(ctx, e)
		require.NoError(t, err)
		assert.False(t, set)
	})
}

func TestStoreCreateWithTags(t *testing.T) {
	forEachStore(t, func(t *testing.T, st testStore) {
		ctx := context.Background()
		e := tags.Entity{Scope: "Scene", ID: "Lamp"}

		require.NoError(t, st.CreateEntity(ctx, e, tags.Tags{"lamp_1", "lit"}))

		got, set, err := st.ReadTags(ctx, e)
		require.NoError(t, err)
		assert.True(t, set)
		assert.Equal(t, tags.Tags{"lamp_1", "lit"}, got)

		// Again replaces the tags, keeping its place within the scope.
		require.NoError(t, st.CreateEntity(ctx, tags.Entity{Scope: "Scene", ID: "Door"}, nil))
		require.NoError(t, st.CreateEntity(ctx, e, tags.Tags{}))

		_, set, err = st.ReadTags(ctx, e)
		require.NoError(t, err)
		assert.False(t, set)

		list, err := st.ListScope(ctx, "Scene")
		require.NoError(t, err)
		assert.Equal(t, []tags.Entity{e, {Scope: "Scene", ID: "Door"}}, list)
	})
}

func TestSQLitePragmasPerConnection(t *testing.T) {
	ctx := context.Background()
	l := zerolog.Nop()

	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "tags.db"), &l)
	require.NoError(t, err)
	defer st.Close()

	// Hold them all at once so the pool has to open new ones.
	for i := 0; i < 3; i++ {
		conn, err := st.db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()

		var timeout, fk int
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))

		assert.Equal(t, 5000, timeout, "conn %d", i)
		assert.Equal(t, 1, fk, "conn %d", i)
	}
}

func TestStoreNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, st testStore) {
		ctx := context.Background()
		e := tags.Entity{Scope: "Scene", ID: "Ghost"}

		_, _, err := st.ReadTags(ctx, e)
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, st.WriteTags(ctx, e, tags.Tags{"a"}), ErrNotFound)
		assert.ErrorIs(t, st.ClearTags(ctx, e), ErrNotFound)

		_, err = st.ListScope(ctx, "Nowhere")
		assert.ErrorIs(t, err, tags.ErrScopeNotFound)
	})
}

func TestStoreScopes(t *testing.T) {
	forEachStore(t, func(t *testing.T, st testStore) {
		ctx := context.Background()

		for _, e := range []tags.Entity{
			{Scope: "B", ID: "one"},
			{Scope: "A", ID: "two"},
			{Scope: "A", ID: "three"},
			{Scope: "A", ID: "two"},
		} {
			require.NoError(t, st.CreateEntity(ctx, e, nil))
		}

		scopes, err := st.Scopes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, scopes)

		list, err := st.ListScope(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, []tags.Entity{{Scope: "A", ID: "two"}, {Scope: "A", ID: "three"}}, list)
	})
}

func TestStoreClosed(t *testing.T) {
	forEachStore(t, func(t *testing.T, st testStore) {
		ctx := context.Background()
		e := tags.Entity{Scope: "S", ID: "x"}

		require.NoError(t, st.CreateEntity(ctx, e, nil))

		st.Close()
		st.Close()

		_, _, err := st.ReadTags(ctx, e)
		assert.ErrorIs(t, err, types.ErrShutdown)
		assert.ErrorIs(t, st.WriteTags(ctx, e, tags.Tags{"a"}), types.ErrShutdown)

		_, err = st.Scopes(ctx)
		assert.ErrorIs(t, err, types.ErrShutdown)
	})
}

func TestMemFailOn(t *testing.T) {
	ctx := context.Background()
	st := NewMem()
	e := tags.Entity{Scope: "S", ID: "x"}
	boom := errors.New("boom")

	require.NoError(t, st.CreateEntity(ctx, e, nil))

	st.FailOn(e, boom)
	assert.ErrorIs(t, st.WriteTags(ctx, e, tags.Tags{"a"}), boom)

	// Nothing is created either.
	n := tags.Entity{Scope: "S", ID: "new"}
	st.FailOn(n, boom)
	assert.ErrorIs(t, st.CreateEntity(ctx, n, tags.Tags{"a"}), boom)

	_, _, err := st.ReadTags(ctx, n)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, st.Writes())

	st.FailOn(e, nil)
	require.NoError(t, st.WriteTags(ctx, e, tags.Tags{"a"}))
	assert.Equal(t, 1, st.Writes())
	assert.Equal(t, tags.Tags{"a"}, st.Raw(e))

	// Stored tags are copied both ways.
	got, _, err := st.ReadTags(ctx, e)
	require.NoError(t, err)
	got[0] = "changed"
	assert.Equal(t, tags.Tags{"a"}, st.Raw(e))

	st.AddScope("Empty")
	list, err := st.ListScope(ctx, "Empty")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNewSQLiteFromConf(t *testing.T) {
	l := zerolog.Nop()
	dir := t.TempDir()
	file := filepath.Join(dir, "store.yaml")
	db := filepath.Join(dir, "tags.db")

	require.NoError(t, os.WriteFile(file, []byte("driver: SQLite\ndatabase: "+db+"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := New(file, &l, ctx)
	require.NoError(t, err)

	_, ok := st.(*SQLiteStore)
	assert.True(t, ok)

	st.Close()
}

func TestConfCheck(t *testing.T) {
	co := &conf{Database: "postgres://localhost/tagger"}
	require.NoError(t, co.check())
	assert.Equal(t, DriverPostgres, co.Driver)
	assert.Equal(t, defaultQueries, co.Queries)

	co = &conf{Database: "x", Queries: confQueries{Read: "SELECT 1"}}
	require.NoError(t, co.check())
	assert.Equal(t, "SELECT 1", co.Queries.Read)
	assert.Equal(t, defaultQueries.Write, co.Queries.Write)

	assert.Error(t, (&conf{}).check())
	assert.Error(t, (&conf{Driver: "mysql", Database: "x"}).check())
}

func TestConfMerge(t *testing.T) {
	a := &conf{Driver: "postgres", Database: "one", Queries: confQueries{Read: "r1", List: "l1"}}
	b := &conf{Database: "two", Queries: confQueries{Read: "r2"}}

	out, err := yconfMerge(a, b)
	require.NoError(t, err)

	co := out.(*conf)
	assert.Equal(t, "postgres", co.Driver)
	assert.Equal(t, "two", co.Database)
	assert.Equal(t, "r2", co.Queries.Read)
	assert.Equal(t, "l1", co.Queries.List)

	assert.False(t, yconfChanged(co, &conf{Driver: "postgres", Database: "two", Queries: confQueries{Read: "r2", List: "l1"}}))
	assert.True(t, yconfChanged(co, &conf{Driver: "postgres", Database: "two"}))

	_, err = yconfMerge(a, "nope")
	assert.Error(t, err)
}
