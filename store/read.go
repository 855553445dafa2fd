package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/jacentio/lattice/internal/keys"
	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/schema"
)

// FindMany returns the records matching q.
//
// Records are located through the cheapest access key the where clause
// provides: primary values are read directly, then unique values, then
// index values by prefix scan. Without any, the primary keyspace is scanned.
// Every predicate is then applied to the located records, so the result
// never depends on which path was taken.
func (t *Table) FindMany(ctx context.Context, q Query) ([]Record, error) {
	return t.findMany(ctx, &q, 0)
}

// FindFirst returns the first record matching q, or ErrNotFound.
func (t *Table) FindFirst(ctx context.Context, q Query) (Record, error) {
	q.Take = 1
	records, err := t.findMany(ctx, &q, 0)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, t.Name())
	}
	return records[0], nil
}

func (t *Table) findMany(ctx context.Context, q *Query, depth int) ([]Record, error) {
	where, err := t.coerceWhere(q.Where)
	if err != nil {
		return nil, err
	}

	entries, err := t.resolve(ctx, where)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", t.Name(), err)
	}

	records := t.dedup(entries)
	records = slices.DeleteFunc(records, func(r Record) bool {
		return !t.matches(r, where)
	})
	records = t.arrange(records, q)

	if len(q.Include) > 0 {
		if err := t.include(ctx, records, q.Include, depth); err != nil {
			return nil, err
		}
	}

	if len(q.Select) > 0 {
		for i := range records {
			records[i].Values = project(records[i].Values, q.Select)
		}
	}
	return records, nil
}

func (t *Table) coerceWhere(where map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(where))
	var issues []schema.Issue
	for field, v := range where {
		if field == "versionstamp" {
			out[field] = v
			continue
		}
		c, err := t.schema.Coerce(field, v)
		if err != nil {
			issues = append(issues, schema.Issue{Field: field, Msg: err.Error()})
			continue
		}
		out[field] = c
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Table: t.Name(), Issues: issues}
	}
	return out, nil
}

// resolve reads the candidate entries for a where clause.
func (t *Table) resolve(ctx context.Context, where map[string]any) ([]kv.Entry, error) {
	accessKeys, err := keys.AccessKeys(t.schema, where)
	if err != nil {
		return nil, err
	}

	var best schema.IndexKind
	for _, ak := range accessKeys {
		if best == schema.IndexNone || ak.Kind < best {
			best = ak.Kind
		}
	}

	var prefixes []kv.Key
	for _, ak := range accessKeys {
		if ak.Kind == best {
			prefixes = append(prefixes, keys.ScanPrefixes(t.schema, ak)...)
		}
	}

	switch best {
	case schema.IndexPrimary, schema.IndexUnique:
		found, err := t.db.kv.GetMany(ctx, prefixes)
		if err != nil {
			return nil, err
		}
		return slices.DeleteFunc(found, func(e kv.Entry) bool { return !e.Exists() }), nil
	case schema.IndexIndex:
		return t.list(ctx, prefixes)
	default:
		all := keys.Prefixes(t.schema)
		if len(all) == 0 {
			return nil, nil
		}
		return t.list(ctx, all[:1])
	}
}

func (t *Table) list(ctx context.Context, prefixes []kv.Key) ([]kv.Entry, error) {
	var out []kv.Entry
	for _, prefix := range prefixes {
		for e, err := range t.db.kv.List(ctx, prefix) {
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// dedup folds the copies of one record into a single record. Records written
// in one commit share a versionstamp, so the primary value tells them apart.
func (t *Table) dedup(entries []kv.Entry) []Record {
	primary, hasPrimary := t.schema.Primary()
	seen := make(map[string]bool, len(entries))
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		id := e.Versionstamp
		if hasPrimary {
			pv, _ := json.Marshal(e.Value[primary.Name])
			id += "\x00" + string(pv)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Record{Values: t.decode(e.Value), Versionstamp: e.Versionstamp})
	}
	return out
}

// decode restores field types the value codec cannot carry, such as whole
// floats read back as integers.
func (t *Table) decode(values map[string]any) map[string]any {
	for field, v := range values {
		if v == nil {
			continue
		}
		if c, err := t.schema.Coerce(field, v); err == nil {
			values[field] = c
		}
	}
	return values
}

func (t *Table) matches(r Record, where map[string]any) bool {
	for field, want := range where {
		if field == "versionstamp" {
			if r.Versionstamp != want {
				return false
			}
			continue
		}

		got, ok := r.Values[field]
		if !ok {
			if want != nil {
				return false
			}
			continue
		}
		if f, ok := t.schema.Field(field); ok && f.Type.IsList() {
			if _, isList := want.([]any); !isList {
				list, _ := got.([]any)
				if !slices.ContainsFunc(list, func(e any) bool { return equal(e, want) }) {
					return false
				}
				continue
			}
		}
		if !equal(got, want) {
			return false
		}
	}
	return true
}

// arrange applies the advisory options in order: OrderBy, Distinct, Skip,
// Take.
func (t *Table) arrange(records []Record, q *Query) []Record {
	if len(q.OrderBy) > 0 {
		slices.SortStableFunc(records, func(a, b Record) int {
			for _, o := range q.OrderBy {
				c := compareValues(a.Values[o.Field], b.Values[o.Field])
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	if len(q.Distinct) > 0 {
		seen := make(map[string]bool, len(records))
		records = slices.DeleteFunc(records, func(r Record) bool {
			tuple := make([]any, len(q.Distinct))
			for i, f := range q.Distinct {
				tuple[i] = r.Values[f]
			}
			id, _ := json.Marshal(tuple)
			if seen[string(id)] {
				return true
			}
			seen[string(id)] = true
			return false
		})
	}

	if q.Skip > 0 {
		records = records[min(q.Skip, len(records)):]
	}
	if q.Take > 0 && len(records) > q.Take {
		records = records[:q.Take]
	}
	return records
}

// include resolves the requested relations of every record.
func (t *Table) include(ctx context.Context, records []Record, include map[string]*Query, depth int) error {
	names := slices.Sorted(maps.Keys(include))
	for _, name := range names {
		rel, ok := t.schema.Relation(name)
		if !ok {
			return &RelationError{Table: t.Name(), Relation: name, Err: ErrUnknownRelation}
		}
		if depth >= t.db.config.MaxIncludeDepth {
			return &RelationError{Table: t.Name(), Relation: name,
				Err: fmt.Errorf("%w: limit is %d", ErrIncludeDepth, t.db.config.MaxIncludeDepth)}
		}
		target, err := t.db.Table(rel.Table)
		if err != nil {
			return &RelationError{Table: t.Name(), Relation: name, Err: err}
		}

		for i := range records {
			related, err := target.related(ctx, rel, records[i].Values[rel.LocalKey], include[name], depth+1)
			if err != nil {
				return err
			}
			if records[i].Relations == nil {
				records[i].Relations = make(map[string]Related)
			}
			records[i].Relations[name] = related
		}
	}
	return nil
}

// related looks up the records of t that a relation with the given local
// value points at.
func (t *Table) related(ctx context.Context, rel schema.Relation, local any, sub *Query, depth int) (Related, error) {
	out := Related{Kind: rel.Kind}
	if local == nil {
		if rel.Kind == schema.ToManyRelation {
			out.Many = []Record{}
		}
		return out, nil
	}

	var q Query
	if sub != nil {
		q = *sub
	}
	q.Where = maps.Clone(q.Where)
	if q.Where == nil {
		q.Where = make(map[string]any, 1)
	}
	q.Where[rel.ForeignKey] = local
	if rel.Kind == schema.ToOneRelation {
		q.Take = 1
	}

	records, err := t.findMany(ctx, &q, depth)
	if err != nil {
		return Related{}, err
	}
	if rel.Kind == schema.ToManyRelation {
		out.Many = records
	} else if len(records) > 0 {
		out.One = &records[0]
	}
	return out, nil
}

func project(values map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := values[f]; ok {
			out[f] = v
		}
	}
	return out
}

func equal(a, b any) bool {
	if x, ok := asFloat(a); ok {
		y, ok := asFloat(b)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		if p, err := kv.NormalizePart(v); err == nil {
			switch n := p.(type) {
			case int64:
				return float64(n), true
			case float64:
				return n, true
			}
		}
		return 0, false
	}
}

// compareValues orders nil first, then bools, numbers, strings and anything
// else by its printed form.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 0:
		return 0
	case 1:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case 2:
		if x, ok := a.(int64); ok {
			if y, ok := b.(int64); ok {
				return cmp.Compare(x, y)
			}
		}
		x, _ := asFloat(a)
		y, _ := asFloat(b)
		return cmp.Compare(x, y)
	case 3:
		return cmp.Compare(a.(string), b.(string))
	default:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := asFloat(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	return 4
}
