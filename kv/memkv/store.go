// Package memkv provides an in-memory ordered kv.KV backed by a B-tree.
//
// Commits are serialized by a single mutex, so every check of a commit sees
// the same state and all of its mutations become visible together.
package memkv

import (
	"bytes"
	"context"
	"iter"
	"sync"

	"github.com/google/btree"

	"github.com/jacentio/lattice/kv"
)

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Store is an in-memory kv.KV.
type Store struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[item]
	counter uint64
	closed  bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tree: btree.NewG[item](32, less)}
}

func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Entry, error) {
	entries, err := s.GetMany(ctx, []kv.Key{key})
	if err != nil {
		return kv.Entry{}, err
	}
	return entries[0], nil
}

func (s *Store) GetMany(_ context.Context, keys []kv.Key) ([]kv.Entry, error) {
	packed := make([][]byte, len(keys))
	for i, k := range keys {
		b, err := k.Pack()
		if err != nil {
			return nil, err
		}
		packed[i] = b
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kv.ErrClosed
	}

	out := make([]kv.Entry, len(keys))
	for i, b := range packed {
		out[i] = kv.Entry{Key: keys[i]}
		found, ok := s.tree.Get(item{key: b})
		if !ok {
			continue
		}
		value, vs, err := kv.DecodeValue(found.value)
		if err != nil {
			return nil, err
		}
		out[i].Value = value
		out[i].Versionstamp = vs
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, prefix kv.Key) iter.Seq2[kv.Entry, error] {
	return func(yield func(kv.Entry, error) bool) {
		start, err := prefix.Pack()
		if err != nil {
			yield(kv.Entry{}, err)
			return
		}

		// Copy the range under the read lock so the caller may write to the
		// store while iterating.
		var items []item
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			yield(kv.Entry{}, kv.ErrClosed)
			return
		}
		s.tree.AscendGreaterOrEqual(item{key: start}, func(it item) bool {
			if !bytes.HasPrefix(it.key, start) {
				return false
			}
			items = append(items, it)
			return true
		})
		s.mu.RUnlock()

		for _, it := range items {
			if err := ctx.Err(); err != nil {
				yield(kv.Entry{}, err)
				return
			}
			key, err := kv.Unpack(it.key)
			if err != nil {
				yield(kv.Entry{}, err)
				return
			}
			value, vs, err := kv.DecodeValue(it.value)
			if err != nil {
				yield(kv.Entry{}, err)
				return
			}
			if !yield(kv.Entry{Key: key, Value: value, Versionstamp: vs}, nil) {
				return
			}
		}
	}
}

func (s *Store) Atomic() kv.Atomic {
	return &atomicOp{store: s}
}

// Len returns the number of keys in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tree.Clear(false)
	return nil
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
	if s.closed {
		return "", kv.ErrClosed
	}

	for i, op := range ops {
		if op.Kind != kv.OpCheck {
			continue
		}
		current := ""
		if found, ok := s.tree.Get(item{key: packed[i]}); ok {
			_, vs, err := kv.DecodeValue(found.value)
			if err != nil {
				return "", err
			}
			current = vs
		}
		if current != op.Versionstamp {
			return "", kv.ErrCheckFailed
		}
	}

	vs := kv.FormatVersionstamp(s.counter + 1)
	encoded := make([][]byte, len(ops))
	for i, op := range ops {
		if op.Kind != kv.OpSet {
			continue
		}
		b, err := kv.EncodeValue(op.Value, vs)
		if err != nil {
			return "", err
		}
		encoded[i] = b
	}

	s.counter++
	for i, op := range ops {
		switch op.Kind {
		case kv.OpSet:
			s.tree.ReplaceOrInsert(item{key: packed[i], value: encoded[i]})
		case kv.OpDelete:
			s.tree.Delete(item{key: packed[i]})
		}
	}
	return vs, nil
}
