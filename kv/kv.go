package kv

import (
	"context"
	"iter"
)

// Entry is a key together with the value and versionstamp stored under it.
// A zero Versionstamp means the key is absent.
type Entry struct {
	Key          Key
	Value        map[string]any
	Versionstamp string
}

// Exists reports whether the entry was found in the store.
func (e Entry) Exists() bool {
	return e.Versionstamp != ""
}

// KV is an ordered key-value store with an atomic compare-and-set primitive.
type KV interface {
	// Get reads a single key. A missing key yields an Entry with an empty
	// Versionstamp and no error.
	Get(ctx context.Context, key Key) (Entry, error)

	// GetMany reads several keys. The result has exactly one slot per
	// requested key, in request order.
	GetMany(ctx context.Context, keys []Key) ([]Entry, error)

	// List yields every entry whose key starts with prefix, in key order.
	// Each call starts a fresh scan.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Atomic starts a new transaction builder.
	Atomic() Atomic

	// Close releases the resources held by the store.
	Close() error
}

// Atomic stages checks and mutations that are committed together.
//
// Check asserts that key currently carries versionstamp; an empty
// versionstamp asserts that the key does not exist. Staging never fails;
// invalid keys are reported by Commit.
type Atomic interface {
	Check(key Key, versionstamp string)
	Set(key Key, value map[string]any)
	Delete(key Key)

	// Commit applies all staged operations atomically. It returns the new
	// versionstamp, ErrCheckFailed when a check did not hold, or ErrConflict
	// when the store aborted the transaction for a concurrent write.
	Commit(ctx context.Context) (string, error)
}

// Limiter is implemented by stores with a hard ceiling on the number of
// operations one atomic commit may carry.
type Limiter interface {
	MaxAtomicOps() int
}

// OpKind identifies a staged operation.
type OpKind uint8

const (
	OpCheck OpKind = iota + 1
	OpSet
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCheck:
		return "check"
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one staged operation.
type Op struct {
	Kind         OpKind
	Key          Key
	Value        map[string]any
	Versionstamp string
}

// Ops records staged operations in order. Backends embed it in their
// Atomic implementation and replay the list at commit time.
type Ops struct {
	ops []Op
}

func (o *Ops) Check(key Key, versionstamp string) {
	o.ops = append(o.ops, Op{Kind: OpCheck, Key: key, Versionstamp: versionstamp})
}

func (o *Ops) Set(key Key, value map[string]any) {
	o.ops = append(o.ops, Op{Kind: OpSet, Key: key, Value: value})
}

func (o *Ops) Delete(key Key) {
	o.ops = append(o.ops, Op{Kind: OpDelete, Key: key})
}

// Staged returns the recorded operations.
func (o *Ops) Staged() []Op {
	return o.ops
}

// Len returns the number of recorded operations.
func (o *Ops) Len() int {
	return len(o.ops)
}
