// Package pebblekv implements kv.KV on top of a Pebble LSM.
//
// Pebble batches are atomic but carry no conditions, so checks and the batch
// commit run under a commit mutex. The last issued versionstamp is persisted
// in the same batch under a meta key outside the tuple keyspace.
package pebblekv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/jacentio/lattice/kv"
)

// metaVersionstamp holds the counter of the last commit. Packed tuples never
// start with 0xFF, so prefix scans cannot reach it.
var metaVersionstamp = []byte("\xff/lattice/versionstamp")

// Store is a Pebble-backed kv.KV.
type Store struct {
	db      *pebble.DB
	mu      sync.Mutex
	counter uint64
	sync    bool
}

// Options configures Open.
type Options struct {
	// Pebble are the options handed to pebble.Open. Nil uses Pebble defaults.
	Pebble *pebble.Options

	// NoSync disables fsync on commit.
	NoSync bool
}

// Open opens or creates a store in dir.
func Open(dir string, opts Options) (*Store, error) {
	db, err := pebble.Open(dir, opts.Pebble)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	s := &Store{db: db, sync: !opts.NoSync}
	raw, closer, err := db.Get(metaVersionstamp)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("read versionstamp: %w", err)
	default:
		s.counter, err = kv.ParseVersionstamp(string(raw))
		_ = closer.Close()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) writeOptions() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Entry, error) {
	entries, err := s.GetMany(ctx, []kv.Key{key})
	if err != nil {
		return kv.Entry{}, err
	}
	return entries[0], nil
}

// GetMany reads all keys from one snapshot.
func (s *Store) GetMany(_ context.Context, keys []kv.Key) ([]kv.Entry, error) {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	out := make([]kv.Entry, len(keys))
	for i, key := range keys {
		out[i] = kv.Entry{Key: key}
		packed, err := key.Pack()
		if err != nil {
			return nil, err
		}
		value, vs, err := get(snap, packed)
		if err != nil {
			return nil, err
		}
		out[i].Value = value
		out[i].Versionstamp = vs
	}
	return out, nil
}

// get reads and decodes one key; a missing key yields an empty versionstamp.
func get(r pebble.Reader, packed []byte) (map[string]any, string, error) {
	raw, closer, err := r.Get(packed)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer closer.Close()
	return kv.DecodeValue(raw)
}

func (s *Store) List(ctx context.Context, prefix kv.Key) iter.Seq2[kv.Entry, error] {
	return func(yield func(kv.Entry, error) bool) {
		lower, err := prefix.Pack()
		if err != nil {
			yield(kv.Entry{}, err)
			return
		}

		upper := kv.PrefixEnd(lower)
		if upper == nil {
			upper = []byte{0xFF}
		}
		it, err := s.db.NewIter(&pebble.IterOptions{
			LowerBound: lower,
			UpperBound: upper,
		})
		if err != nil {
			yield(kv.Entry{}, err)
			return
		}
		defer it.Close()

		for valid := it.First(); valid; valid = it.Next() {
			if err := ctx.Err(); err != nil {
				yield(kv.Entry{}, err)
				return
			}
			key, err := kv.Unpack(it.Key())
			if err != nil {
				yield(kv.Entry{}, err)
				return
			}
			value, vs, err := kv.DecodeValue(it.Value())
			if err != nil {
				yield(kv.Entry{}, err)
				return
			}
			if !yield(kv.Entry{Key: key, Value: value, Versionstamp: vs}, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(kv.Entry{}, err)
		}
	}
}

func (s *Store) Atomic() kv.Atomic {
	return &atomicOp{store: s}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type atomicOp struct {
	kv.Ops
	store *Store
}

func (a *atomicOp) Commit(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ops := a.Staged()
	packed := make([][]byte, len(ops))
	for i, op := range ops {
		b, err := op.Key.Pack()
		if err != nil {
			return "", err
		}
		packed[i] = b
	}

	s := a.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, op := range ops {
		if op.Kind != kv.OpCheck {
			continue
		}
		_, current, err := get(s.db, packed[i])
		if err != nil {
			return "", err
		}
		if current != op.Versionstamp {
			return "", kv.ErrCheckFailed
		}
	}

	next := s.counter + 1
	vs := kv.FormatVersionstamp(next)

	batch := s.db.NewBatch()
	defer batch.Close()
	for i, op := range ops {
		switch op.Kind {
		case kv.OpSet:
			value, err := kv.EncodeValue(op.Value, vs)
			if err != nil {
				return "", err
			}
			if err := batch.Set(packed[i], value, nil); err != nil {
				return "", err
			}
		case kv.OpDelete:
			if err := batch.Delete(packed[i], nil); err != nil {
				return "", err
			}
		}
	}
	if err := batch.Set(metaVersionstamp, []byte(vs), nil); err != nil {
		return "", err
	}
	if err := batch.Commit(s.writeOptions()); err != nil {
		return "", fmt.Errorf("commit batch: %w", err)
	}

	s.counter = next
	return vs, nil
}
