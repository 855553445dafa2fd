// Package store keeps secondary indexes consistent on top of an ordered
// key-value store.
//
// Every logical record is written once per access key: under its primary
// value, under each unique value and under each index value. All copies are
// written, rewritten and removed in the same atomic commit and carry the
// same versionstamp, which doubles as the optimistic concurrency token.
//
// # Tables
//
// Tables are compiled with package schema and bound to a backend with [New]:
//
//	users := schema.MustCompile(schema.Definition{
//	    Name: "users",
//	    Fields: []schema.Field{
//	        {Name: "id", Type: schema.TypeString, Index: schema.IndexPrimary},
//	        {Name: "email", Type: schema.TypeString, Index: schema.IndexUnique},
//	        {Name: "tags", Type: schema.TypeStringList, Index: schema.IndexIndex, Optional: true},
//	    },
//	    Relations: map[string]schema.Relation{
//	        "posts": schema.ToMany("posts", "id", "authorId"),
//	    },
//	})
//
//	db, err := store.New(memkv.New(), []*schema.Table{users, posts}, store.DefaultConfig())
//
// # Queries
//
// [Table.FindMany] reads through the cheapest access key of the where clause
// (primary, then unique, then index) and falls back to scanning the primary
// keyspace. Every predicate is checked again on the located records. Declared
// relations are resolved with [Query.Include].
//
// # Batches
//
// Multi-record writes are split into chunks of at most
// [Config.MaxBatchOps] operations, further capped by backends that implement
// kv.Limiter. Each chunk commits atomically. When a later chunk fails, the
// committed chunks are undone unless [Config.RollbackPartialBatches] is off.
//
// # Errors
//
//   - [ErrNotFound] - FindFirst or Delete matched nothing
//   - [ErrNoMatch] - Update matched nothing
//   - [ErrDuplicateValue] - a primary or unique value is taken
//   - [ErrConcurrentModification] - the versionstamp changed since the read
//   - [ErrBatchTooLarge] - one record exceeds the per-commit ceiling
//   - [ErrIncludeDepth] - includes nest deeper than Config.MaxIncludeDepth
package store
