package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/lattice/kv"
)

// touch is one key a plan writes, with the value it held before.
type touch struct {
	key     kv.Key
	before  map[string]any // nil when the key was absent
	deleted bool
}

// writePlan is the staged work for one logical record.
type writePlan struct {
	ops     []kv.Op
	touches []touch
	record  *Record
}

func (p *writePlan) check(key kv.Key, vs string) {
	p.ops = append(p.ops, kv.Op{Kind: kv.OpCheck, Key: key, Versionstamp: vs})
}

func (p *writePlan) set(key kv.Key, value map[string]any, before map[string]any) {
	p.ops = append(p.ops, kv.Op{Kind: kv.OpSet, Key: key, Value: value})
	p.touches = append(p.touches, touch{key: key, before: before})
}

func (p *writePlan) del(key kv.Key, before map[string]any) {
	p.ops = append(p.ops, kv.Op{Kind: kv.OpDelete, Key: key})
	p.touches = append(p.touches, touch{key: key, before: before, deleted: true})
}

// undo returns the operations restoring every touched key, each guarded by
// a check that the key still holds what this plan left there.
func (p *writePlan) undo(vs string) []kv.Op {
	ops := make([]kv.Op, 0, 2*len(p.touches))
	for _, t := range p.touches {
		expect := vs
		if t.deleted {
			expect = ""
		}
		ops = append(ops, kv.Op{Kind: kv.OpCheck, Key: t.key, Versionstamp: expect})
		if t.before == nil {
			ops = append(ops, kv.Op{Kind: kv.OpDelete, Key: t.key})
		} else {
			ops = append(ops, kv.Op{Kind: kv.OpSet, Key: t.key, Value: t.before})
		}
	}
	return ops
}

// size is the larger of the forward and the compensating operation count,
// so a chunk always fits both.
func (p *writePlan) size() int {
	return max(len(p.ops), 2*len(p.touches))
}

type chunk struct {
	plans []*writePlan
	vs    string
}

// chunkPlans groups plans greedily in order so no chunk exceeds limit.
func chunkPlans(plans []*writePlan, limit int) ([]*chunk, error) {
	var (
		chunks []*chunk
		cur    *chunk
		n      int
	)
	for _, p := range plans {
		size := p.size()
		if size > limit {
			return nil, fmt.Errorf("%w: %d operations, limit is %d", ErrBatchTooLarge, size, limit)
		}
		if cur == nil || n+size > limit {
			cur = &chunk{}
			chunks = append(chunks, cur)
			n = 0
		}
		cur.plans = append(cur.plans, p)
		n += size
	}
	return chunks, nil
}

// runBatched commits plans in chunks. Each chunk is one atomic commit whose
// versionstamp is stamped on every record of the chunk. A failed commit
// yields a *BatchError; committed chunks are compensated first when the
// config asks for it. checkFailed is joined to kv.ErrCheckFailed so callers
// can tell what a failed check means for their operation.
func (t *Table) runBatched(ctx context.Context, op string, plans []*writePlan, checkFailed error) ([]Record, error) {
	db := t.db
	db.metrics.op(op, t.Name())

	chunks, err := chunkPlans(plans, db.limit)
	if err != nil {
		return nil, err
	}
	db.metrics.chunks(op, len(chunks))

	for i, c := range chunks {
		tx := db.kv.Atomic()
		staged := 0
		for _, p := range c.plans {
			stage(tx, p.ops)
			staged += len(p.ops)
		}

		vs, err := tx.Commit(ctx)
		if err != nil {
			db.metrics.commitFailure(op, t.Name())
			if errors.Is(err, kv.ErrCheckFailed) && checkFailed != nil {
				err = fmt.Errorf("%w: %w", checkFailed, err)
			}
			batchErr := &BatchError{Chunk: i, Chunks: len(chunks), Err: err}
			if i > 0 {
				t.compensate(ctx, op, chunks[:i], batchErr)
			}
			return nil, batchErr
		}

		c.vs = vs
		for _, p := range c.plans {
			p.record.Versionstamp = vs
		}
		db.log.Debug("committed chunk",
			"table", t.Name(),
			"op", op,
			"chunk", i,
			"chunks", len(chunks),
			"ops", staged,
			"versionstamp", vs,
		)
	}

	out := make([]Record, len(plans))
	for i, p := range plans {
		out[i] = *p.record
	}
	return out, nil
}

// compensate undoes committed chunks in reverse order and records the
// outcome on batchErr.
func (t *Table) compensate(ctx context.Context, op string, committed []*chunk, batchErr *BatchError) {
	db := t.db
	if !db.config.RollbackPartialBatches {
		db.log.Warn("partial batch left committed",
			"table", t.Name(),
			"op", op,
			"committed_chunks", len(committed),
			"error", batchErr.Err,
		)
		return
	}

	// The caller's context may be what failed the commit.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(committed) - 1; i >= 0; i-- {
		c := committed[i]
		tx := db.kv.Atomic()
		for _, p := range c.plans {
			stage(tx, p.undo(c.vs))
		}
		if _, err := tx.Commit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("chunk %d: %w", i, err))
		}
	}

	db.metrics.rollback(t.Name())
	batchErr.RollbackErr = errors.Join(errs...)
	batchErr.RolledBack = batchErr.RollbackErr == nil
	db.log.Warn("rolled back partial batch",
		"table", t.Name(),
		"op", op,
		"committed_chunks", len(committed),
		"rolled_back", batchErr.RolledBack,
		"error", batchErr.Err,
		"rollback_error", batchErr.RollbackErr,
	)
}

func stage(tx kv.Atomic, ops []kv.Op) {
	for _, op := range ops {
		switch op.Kind {
		case kv.OpCheck:
			tx.Check(op.Key, op.Versionstamp)
		case kv.OpSet:
			tx.Set(op.Key, op.Value)
		case kv.OpDelete:
			tx.Delete(op.Key)
		}
	}
}
