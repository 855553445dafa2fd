package store

import (
	"context"
	"fmt"
	"maps"

	"github.com/jacentio/lattice/internal/keys"
	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/schema"
)

// Create validates values and writes the record under all of its keys in
// one atomic commit. A primary or unique value that is already taken fails
// with a *CreateError wrapping ErrDuplicateValue and leaves the store as it
// was.
func (t *Table) Create(ctx context.Context, values map[string]any) (Record, error) {
	records, err := t.CreateMany(ctx, []map[string]any{values})
	if err != nil {
		return Record{}, err
	}
	return records[0], nil
}

// CreateMany validates every item before opening a transaction, then writes
// them in as few commits as the per-commit ceiling allows. Records committed
// together share a versionstamp.
func (t *Table) CreateMany(ctx context.Context, items []map[string]any) ([]Record, error) {
	validated, err := t.validateAll(items)
	if err != nil {
		return nil, err
	}
	return t.create(ctx, "create", validated)
}

// UpsertMany inserts the items whose primary value is not stored yet and
// skips the rest. Existing records are never modified. When the input repeats
// a primary value, the first item wins. Only inserted records are returned.
func (t *Table) UpsertMany(ctx context.Context, items []map[string]any) ([]Record, error) {
	validated, err := t.validateAll(items)
	if err != nil {
		return nil, err
	}

	var (
		pending []map[string]any
		pks     []kv.Key
		seen    = make(map[string]bool)
	)
	for _, values := range validated {
		pk, err := keys.PrimaryKey(t.schema, values)
		if err != nil {
			return nil, err
		}
		packed, err := pk.Pack()
		if err != nil {
			return nil, &SchemaError{Table: t.Name(), Err: err}
		}
		if seen[string(packed)] {
			continue
		}
		seen[string(packed)] = true
		pending = append(pending, values)
		pks = append(pks, pk)
	}
	if len(pending) == 0 {
		return []Record{}, nil
	}

	existing, err := t.db.kv.GetMany(ctx, pks)
	if err != nil {
		return nil, &CreateError{Table: t.Name(), Err: err}
	}
	var absent []map[string]any
	for i, e := range existing {
		if !e.Exists() {
			absent = append(absent, pending[i])
		}
	}
	if len(absent) == 0 {
		return []Record{}, nil
	}

	t.db.log.Debug("upserting records",
		"table", t.Name(),
		"items", len(items),
		"inserting", len(absent),
	)
	return t.create(ctx, "upsert", absent)
}

func (t *Table) validateAll(items []map[string]any) ([]map[string]any, error) {
	if _, ok := t.schema.Primary(); !ok {
		return nil, &SchemaError{Table: t.Name(), Msg: "cannot write", Err: ErrNoPrimary}
	}
	out := make([]map[string]any, len(items))
	for i, item := range items {
		values, err := t.schema.Validate(item)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

func (t *Table) create(ctx context.Context, op string, validated []map[string]any) ([]Record, error) {
	plans := make([]*writePlan, len(validated))
	claims := make(map[string]bool)
	for i, values := range validated {
		p, err := t.createPlan(values, claims)
		if err != nil {
			return nil, &CreateError{Table: t.Name(), Err: err}
		}
		plans[i] = p
	}

	records, err := t.runBatched(ctx, op, plans, ErrDuplicateValue)
	if err != nil {
		return nil, &CreateError{Table: t.Name(), Err: err}
	}
	return records, nil
}

// createPlan claims every primary and unique key of the record and writes a
// copy under each of its keys. claims collects the keys taken by earlier
// records of the same call.
func (t *Table) createPlan(values map[string]any, claims map[string]bool) (*writePlan, error) {
	pks, err := keys.RecordKeys(t.schema, values)
	if err != nil {
		return nil, err
	}
	if err := claim(claims, pks); err != nil {
		return nil, err
	}
	p := &writePlan{record: &Record{Values: values}}
	for _, pk := range pks {
		if pk.Kind != schema.IndexIndex {
			p.check(pk.Key, "")
		}
	}
	for _, pk := range pks {
		p.set(pk.Key, values, nil)
	}
	return p, nil
}

// Update applies data to the first record matching where. Every copy of the
// record must still carry the versionstamp it was read with, otherwise the
// update fails with ErrConcurrentModification. A "versionstamp" entry in
// data replaces the expected versionstamp.
func (t *Table) Update(ctx context.Context, where, data map[string]any) (Record, error) {
	records, err := t.update(ctx, where, data, 1)
	if err != nil {
		return Record{}, err
	}
	return records[0], nil
}

// UpdateMany applies data to every record matching where.
func (t *Table) UpdateMany(ctx context.Context, where, data map[string]any) ([]Record, error) {
	return t.update(ctx, where, data, 0)
}

func (t *Table) update(ctx context.Context, where, data map[string]any, take int) ([]Record, error) {
	if _, ok := t.schema.Primary(); !ok {
		return nil, &UpdateError{Table: t.Name(), Err: ErrNoPrimary}
	}

	found, err := t.FindMany(ctx, Query{Where: where, Take: take})
	if err != nil {
		return nil, &UpdateError{Table: t.Name(), Err: err}
	}
	if len(found) == 0 {
		return nil, &UpdateError{Table: t.Name(), Err: ErrNoMatch}
	}

	raw, forced := data["versionstamp"]
	expected, ok := raw.(string)
	if forced && !ok {
		return nil, &UpdateError{Table: t.Name(), Err: &ValidationError{
			Table:  t.Name(),
			Issues: []schema.Issue{{Field: "versionstamp", Msg: fmt.Sprintf("expected string, got %T", raw)}},
		}}
	}
	changes := maps.Clone(data)
	delete(changes, "versionstamp")

	plans := make([]*writePlan, len(found))
	claims := make(map[string]bool)
	for i, old := range found {
		vs := old.Versionstamp
		if forced {
			vs = expected
		}
		merged := maps.Clone(old.Values)
		maps.Copy(merged, changes)

		values, err := t.schema.Validate(merged)
		if err != nil {
			return nil, &UpdateError{Table: t.Name(), Err: err}
		}
		p, err := t.updatePlan(old.Values, values, vs, claims)
		if err != nil {
			return nil, &UpdateError{Table: t.Name(), Err: err}
		}
		plans[i] = p
	}

	records, err := t.runBatched(ctx, "update", plans, ErrConcurrentModification)
	if err != nil {
		return nil, &UpdateError{Table: t.Name(), Err: err}
	}
	return records, nil
}

// updatePlan moves a record from its old keys to its new keys. Old copies
// are checked against vs; newly claimed primary and unique keys are checked
// for absence.
func (t *Table) updatePlan(before, after map[string]any, vs string, claims map[string]bool) (*writePlan, error) {
	oldKeys, err := keys.RecordKeys(t.schema, before)
	if err != nil {
		return nil, err
	}
	newKeys, err := keys.RecordKeys(t.schema, after)
	if err != nil {
		return nil, err
	}
	if err := claim(claims, newKeys); err != nil {
		return nil, err
	}

	oldSet := packedSet(oldKeys)
	newSet := packedSet(newKeys)

	p := &writePlan{record: &Record{Values: after}}
	for _, pk := range oldKeys {
		p.check(pk.Key, vs)
	}
	for _, pk := range newKeys {
		if pk.Kind != schema.IndexIndex && !oldSet[string(pk.Key.MustPack())] {
			p.check(pk.Key, "")
		}
	}
	for _, pk := range oldKeys {
		if !newSet[string(pk.Key.MustPack())] {
			p.del(pk.Key, before)
		}
	}
	for _, pk := range newKeys {
		var prev map[string]any
		if oldSet[string(pk.Key.MustPack())] {
			prev = before
		}
		p.set(pk.Key, after, prev)
	}
	return p, nil
}

// claim records the primary and unique keys of one record in claims. A key
// already claimed by another record of the call fails with
// ErrDuplicateValue, since checks only see the state before the commit.
func claim(claims map[string]bool, pks []keys.PhysicalKey) error {
	for _, pk := range pks {
		if pk.Kind == schema.IndexIndex {
			continue
		}
		id := string(pk.Key.MustPack())
		if claims[id] {
			return fmt.Errorf("%w: %s claimed twice in one call", ErrDuplicateValue, pk.Key)
		}
		claims[id] = true
	}
	return nil
}

// packedSet indexes keys by packed form. RecordKeys only returns keys that
// pack, so MustPack cannot panic here.
func packedSet(pks []keys.PhysicalKey) map[string]bool {
	set := make(map[string]bool, len(pks))
	for _, pk := range pks {
		set[string(pk.Key.MustPack())] = true
	}
	return set
}

// Delete removes the first record matching where from all of its keys and
// returns it. It fails with ErrNotFound when nothing matches.
func (t *Table) Delete(ctx context.Context, where map[string]any) (Record, error) {
	found, err := t.FindMany(ctx, Query{Where: where, Take: 1})
	if err != nil {
		return Record{}, &DeleteError{Table: t.Name(), Err: err}
	}
	if len(found) == 0 {
		return Record{}, &DeleteError{Table: t.Name(), Err: ErrNotFound}
	}
	if _, err := t.delete(ctx, "delete", found); err != nil {
		return Record{}, err
	}
	return found[0], nil
}

// DeleteMany removes every record matching where and reports how many were
// removed. Matching nothing is not an error.
func (t *Table) DeleteMany(ctx context.Context, where map[string]any) (int, error) {
	found, err := t.FindMany(ctx, Query{Where: where})
	if err != nil {
		return 0, &DeleteError{Table: t.Name(), Err: err}
	}
	if len(found) == 0 {
		return 0, nil
	}
	return t.delete(ctx, "delete", found)
}

func (t *Table) delete(ctx context.Context, op string, records []Record) (int, error) {
	plans := make([]*writePlan, len(records))
	for i, r := range records {
		pks, err := keys.RecordKeys(t.schema, r.Values)
		if err != nil {
			return 0, &DeleteError{Table: t.Name(), Err: err}
		}
		p := &writePlan{record: &Record{Values: r.Values}}
		for _, pk := range pks {
			p.del(pk.Key, r.Values)
		}
		plans[i] = p
	}

	if _, err := t.runBatched(ctx, op, plans, nil); err != nil {
		return 0, &DeleteError{Table: t.Name(), Err: fmt.Errorf("%d records: %w", len(records), err)}
	}
	return len(records), nil
}
