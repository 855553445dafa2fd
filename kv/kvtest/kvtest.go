// Package kvtest contains a conformance suite that every kv.KV backend runs
// from its own tests.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/lattice/kv"
)

// Factory creates a fresh, empty store for one test.
type Factory func(t *testing.T) kv.KV

// RunKVTests runs the conformance suite against the backend built by factory.
func RunKVTests(t *testing.T, name string, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store kv.KV)
	}{
		{"GetMissing", testGetMissing},
		{"SetAndGet", testSetAndGet},
		{"GetManyPreservesOrder", testGetManyPreservesOrder},
		{"CheckAbsent", testCheckAbsent},
		{"CheckVersionstamp", testCheckVersionstamp},
		{"FailedCheckAppliesNothing", testFailedCheckAppliesNothing},
		{"DeleteMissingKey", testDeleteMissingKey},
		{"DeleteExisting", testDeleteExisting},
		{"SharedVersionstamp", testSharedVersionstamp},
		{"MonotonicVersionstamps", testMonotonicVersionstamps},
		{"ListPrefix", testListPrefix},
		{"ListStopsEarly", testListStopsEarly},
		{"ListWhileWriting", testListWhileWriting},
		{"ValueTypes", testValueTypes},
		{"InvalidKeyPart", testInvalidKeyPart},
	}

	for _, tt := range tests {
		t.Run(name+"/"+tt.name, func(t *testing.T) {
			store := factory(t)
			t.Cleanup(func() { _ = store.Close() })
			tt.fn(t, store)
		})
	}
}

func commit(t *testing.T, store kv.KV, stage func(tx kv.Atomic)) string {
	t.Helper()
	tx := store.Atomic()
	stage(tx)
	vs, err := tx.Commit(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, vs)
	return vs
}

func testGetMissing(t *testing.T, store kv.KV) {
	entry, err := store.Get(context.Background(), kv.Key{"users", "nobody"})
	require.NoError(t, err)
	assert.False(t, entry.Exists())
	assert.Nil(t, entry.Value)
}

func testSetAndGet(t *testing.T, store kv.KV) {
	key := kv.Key{"users", "u1"}
	vs := commit(t, store, func(tx kv.Atomic) {
		tx.Set(key, map[string]any{"id": "u1", "name": "ann"})
	})

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, entry.Exists())
	assert.Equal(t, vs, entry.Versionstamp)
	assert.Equal(t, "ann", entry.Value["name"])
	assert.True(t, entry.Key.Equal(key))
}

func testGetManyPreservesOrder(t *testing.T, store kv.KV) {
	commit(t, store, func(tx kv.Atomic) {
		tx.Set(kv.Key{"users", "a"}, map[string]any{"id": "a"})
		tx.Set(kv.Key{"users", "c"}, map[string]any{"id": "c"})
	})

	keys := []kv.Key{{"users", "c"}, {"users", "b"}, {"users", "a"}}
	entries, err := store.GetMany(context.Background(), keys)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "c", entries[0].Value["id"])
	assert.False(t, entries[1].Exists())
	assert.True(t, entries[1].Key.Equal(keys[1]))
	assert.Equal(t, "a", entries[2].Value["id"])
}

func testCheckAbsent(t *testing.T, store kv.KV) {
	key := kv.Key{"users", "u1"}
	commit(t, store, func(tx kv.Atomic) {
		tx.Check(key, "")
		tx.Set(key, map[string]any{"id": "u1"})
	})

	tx := store.Atomic()
	tx.Check(key, "")
	tx.Set(key, map[string]any{"id": "u1", "name": "again"})
	_, err := tx.Commit(context.Background())
	assert.ErrorIs(t, err, kv.ErrCheckFailed)
}

func testCheckVersionstamp(t *testing.T, store kv.KV) {
	key := kv.Key{"users", "u1"}
	first := commit(t, store, func(tx kv.Atomic) {
		tx.Set(key, map[string]any{"n": int64(1)})
	})
	second := commit(t, store, func(tx kv.Atomic) {
		tx.Check(key, first)
		tx.Set(key, map[string]any{"n": int64(2)})
	})
	assert.NotEqual(t, first, second)

	tx := store.Atomic()
	tx.Check(key, first)
	tx.Set(key, map[string]any{"n": int64(3)})
	_, err := tx.Commit(context.Background())
	require.ErrorIs(t, err, kv.ErrCheckFailed)

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Value["n"])
	assert.Equal(t, second, entry.Versionstamp)
}

func testFailedCheckAppliesNothing(t *testing.T, store kv.KV) {
	taken := kv.Key{"users_by_unique_email", "a@x.io"}
	commit(t, store, func(tx kv.Atomic) {
		tx.Set(taken, map[string]any{"id": "u1"})
	})

	tx := store.Atomic()
	tx.Check(kv.Key{"users", "u2"}, "")
	tx.Set(kv.Key{"users", "u2"}, map[string]any{"id": "u2"})
	tx.Check(taken, "")
	tx.Set(taken, map[string]any{"id": "u2"})
	_, err := tx.Commit(context.Background())
	require.ErrorIs(t, err, kv.ErrCheckFailed)

	entry, err := store.Get(context.Background(), kv.Key{"users", "u2"})
	require.NoError(t, err)
	assert.False(t, entry.Exists(), "no mutation of a failed commit may be visible")

	entry, err = store.Get(context.Background(), taken)
	require.NoError(t, err)
	assert.Equal(t, "u1", entry.Value["id"])
}

func testDeleteMissingKey(t *testing.T, store kv.KV) {
	commit(t, store, func(tx kv.Atomic) {
		tx.Delete(kv.Key{"users", "ghost"})
	})
}

func testDeleteExisting(t *testing.T, store kv.KV) {
	key := kv.Key{"users", "u1"}
	commit(t, store, func(tx kv.Atomic) {
		tx.Set(key, map[string]any{"id": "u1"})
	})
	commit(t, store, func(tx kv.Atomic) {
		tx.Delete(key)
	})

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, entry.Exists())
}

func testSharedVersionstamp(t *testing.T, store kv.KV) {
	keys := []kv.Key{
		{"users", "u1"},
		{"users_by_unique_email", "a@x.io"},
		{"users_by_age", int64(30), "u1"},
	}
	vs := commit(t, store, func(tx kv.Atomic) {
		for _, k := range keys {
			tx.Set(k, map[string]any{"id": "u1"})
		}
	})

	entries, err := store.GetMany(context.Background(), keys)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, vs, e.Versionstamp, "key %s", e.Key)
	}
}

func testMonotonicVersionstamps(t *testing.T, store kv.KV) {
	prev := ""
	for i := 0; i < 5; i++ {
		vs := commit(t, store, func(tx kv.Atomic) {
			tx.Set(kv.Key{"counter", int64(i)}, map[string]any{"i": int64(i)})
		})
		assert.Greater(t, vs, prev)
		prev = vs
	}
}

func testListPrefix(t *testing.T, store kv.KV) {
	commit(t, store, func(tx kv.Atomic) {
		tx.Set(kv.Key{"users_by_name", "bob", "u2"}, map[string]any{"id": "u2"})
		tx.Set(kv.Key{"users_by_name", "ann", "u3"}, map[string]any{"id": "u3"})
		tx.Set(kv.Key{"users_by_name", "ann", "u1"}, map[string]any{"id": "u1"})
		tx.Set(kv.Key{"users_by_name", "anna", "u4"}, map[string]any{"id": "u4"})
		tx.Set(kv.Key{"users", "u1"}, map[string]any{"id": "u1"})
	})

	var ids []any
	for entry, err := range store.List(context.Background(), kv.Key{"users_by_name", "ann"}) {
		require.NoError(t, err)
		ids = append(ids, entry.Value["id"])
	}
	assert.Equal(t, []any{"u1", "u3"}, ids)

	var all int
	for _, err := range store.List(context.Background(), kv.Key{"users_by_name"}) {
		require.NoError(t, err)
		all++
	}
	assert.Equal(t, 4, all)
}

func testListStopsEarly(t *testing.T, store kv.KV) {
	commit(t, store, func(tx kv.Atomic) {
		for i := 0; i < 10; i++ {
			tx.Set(kv.Key{"items", int64(i)}, map[string]any{"i": int64(i)})
		}
	})

	var seen int
	for _, err := range store.List(context.Background(), kv.Key{"items"}) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func testListWhileWriting(t *testing.T, store kv.KV) {
	commit(t, store, func(tx kv.Atomic) {
		tx.Set(kv.Key{"items", int64(1)}, map[string]any{"i": int64(1)})
		tx.Set(kv.Key{"items", int64(2)}, map[string]any{"i": int64(2)})
	})

	for entry, err := range store.List(context.Background(), kv.Key{"items"}) {
		require.NoError(t, err)
		tx := store.Atomic()
		tx.Delete(entry.Key)
		_, err := tx.Commit(context.Background())
		require.NoError(t, err)
	}

	var left int
	for _, err := range store.List(context.Background(), kv.Key{"items"}) {
		require.NoError(t, err)
		left++
	}
	assert.Zero(t, left)
}

func testValueTypes(t *testing.T, store kv.KV) {
	key := kv.Key{"things", "t1"}
	commit(t, store, func(tx kv.Atomic) {
		tx.Set(key, map[string]any{
			"s": "text",
			"i": int64(42),
			"f": 1.5,
			"b": true,
			"l": []any{"x", "y"},
		})
	})

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "text", entry.Value["s"])
	assert.Equal(t, int64(42), entry.Value["i"])
	assert.Equal(t, 1.5, entry.Value["f"])
	assert.Equal(t, true, entry.Value["b"])
	assert.Equal(t, []any{"x", "y"}, entry.Value["l"])
}

func testInvalidKeyPart(t *testing.T, store kv.KV) {
	tx := store.Atomic()
	tx.Set(kv.Key{"things", struct{}{}}, map[string]any{})
	_, err := tx.Commit(context.Background())
	assert.ErrorIs(t, err, kv.ErrUnsupportedKeyPart)
}
