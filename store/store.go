package store

import (
	"fmt"
	"log/slog"

	"github.com/jacentio/lattice/internal/keys"
	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/schema"
)

// DB binds compiled tables to a key-value store.
type DB struct {
	kv       kv.KV
	config   Config
	registry *Registry
	limit    int
	metrics  *dbMetrics
	log      *slog.Logger
}

// New creates a DB over store with the given tables. Relations are checked
// against the registered tables.
func New(store kv.KV, tables []*schema.Table, config Config) (*DB, error) {
	config.validate()

	registry := NewRegistry()
	for _, t := range tables {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}

	limit := config.MaxBatchOps
	if l, ok := store.(kv.Limiter); ok && l.MaxAtomicOps() < limit {
		limit = l.MaxAtomicOps()
	}

	return &DB{
		kv:       store,
		config:   config,
		registry: registry,
		limit:    limit,
		metrics:  newDBMetrics(),
		log:      config.Logger,
	}, nil
}

// Table returns the handle of a registered table.
func (db *DB) Table(name string) (*Table, error) {
	t, ok := db.registry.Table(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return &Table{db: db, schema: t}, nil
}

// Tables returns the registered table names in registration order.
func (db *DB) Tables() []string {
	return db.registry.Names()
}

// Registry returns the table registry.
func (db *DB) Registry() *Registry {
	return db.registry
}

// MaxOpsPerCommit returns the effective per-commit operation ceiling.
func (db *DB) MaxOpsPerCommit() int {
	return db.limit
}

// Table is the logical API of one table.
type Table struct {
	db     *DB
	schema *schema.Table
}

func (t *Table) Name() string {
	return t.schema.Name()
}

// Schema returns the compiled table definition.
func (t *Table) Schema() *schema.Table {
	return t.schema
}

// Prefixes returns the keyspace prefixes of the table, primary first.
func (t *Table) Prefixes() []kv.Key {
	return keys.Prefixes(t.schema)
}
