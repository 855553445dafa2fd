// Package badgerkv implements kv.KV on top of Badger.
//
// Every commit runs inside one Badger read-write transaction: checks read
// the checked keys through the transaction, so Badger's conflict detection
// aborts the commit if another writer touched them first. Versionstamps come
// from a persistent Badger sequence.
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/lattice/kv"
)

var sequenceKey = []byte("\xff/lattice/versionstamp")

// Store is a Badger-backed kv.KV.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence

	// mu orders commits so versionstamps are issued in commit order.
	mu sync.Mutex
}

// Open opens a store with the given Badger options.
func Open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence(sequenceKey, 1000)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("versionstamp sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// OpenInMemory opens a store that keeps everything in memory.
func OpenInMemory() (*Store, error) {
	return Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Entry, error) {
	entries, err := s.GetMany(ctx, []kv.Key{key})
	if err != nil {
		return kv.Entry{}, err
	}
	return entries[0], nil
}

// GetMany reads all keys inside one read-only transaction.
func (s *Store) GetMany(_ context.Context, keys []kv.Key) ([]kv.Entry, error) {
	out := make([]kv.Entry, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			out[i] = kv.Entry{Key: key}
			packed, err := key.Pack()
			if err != nil {
				return err
			}
			value, vs, err := get(txn, packed)
			if err != nil {
				return err
			}
			out[i].Value = value
			out[i].Versionstamp = vs
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func get(txn *badger.Txn, packed []byte) (map[string]any, string, error) {
	item, err := txn.Get(packed)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, "", err
	}
	return kv.DecodeValue(raw)
}

func (s *Store) List(ctx context.Context, prefix kv.Key) iter.Seq2[kv.Entry, error] {
	return func(yield func(kv.Entry, error) bool) {
		start, err := prefix.Pack()
		if err != nil {
			yield(kv.Entry{}, err)
			return
		}

		stopped := false
		err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = start
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(start); it.ValidForPrefix(start); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				item := it.Item()
				raw := item.KeyCopy(nil)
				if len(raw) > 0 && raw[0] == 0xFF {
					return nil
				}
				key, err := kv.Unpack(raw)
				if err != nil {
					return err
				}
				data, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				value, vs, err := kv.DecodeValue(data)
				if err != nil {
					return err
				}
				if !yield(kv.Entry{Key: key, Value: value, Versionstamp: vs}, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(kv.Entry{}, mapError(err))
		}
	}
}

func (s *Store) Atomic() kv.Atomic {
	return &atomicOp{store: s}
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return err
	}
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

	n, err := s.seq.Next()
	if err != nil {
		return "", fmt.Errorf("next versionstamp: %w", err)
	}
	vs := kv.FormatVersionstamp(n + 1)

	err = s.db.Update(func(txn *badger.Txn) error {
		for i, op := range ops {
			if op.Kind != kv.OpCheck {
				continue
			}
			_, current, err := get(txn, packed[i])
			if err != nil {
				return err
			}
			if current != op.Versionstamp {
				return kv.ErrCheckFailed
			}
		}
		for i, op := range ops {
			switch op.Kind {
			case kv.OpSet:
				value, err := kv.EncodeValue(op.Value, vs)
				if err != nil {
					return err
				}
				if err := txn.Set(packed[i], value); err != nil {
					return err
				}
			case kv.OpDelete:
				if err := txn.Delete(packed[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", mapError(err)
	}
	return vs, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", kv.ErrConflict, err)
	case errors.Is(err, badger.ErrDBClosed):
		return kv.ErrClosed
	default:
		return err
	}
}
