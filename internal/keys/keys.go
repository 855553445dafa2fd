// Package keys derives the physical keys of logical records.
//
// A record is stored once per access key: under its primary key, once per
// unique field value and once per index field value. All functions here are
// pure; they read the compiled schema and the given values only.
package keys

import (
	"fmt"

	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/schema"
)

// AccessKey is one lookup dimension of a record before it is turned into
// physical keys. List valued fields carry one value per element.
type AccessKey struct {
	Kind   schema.IndexKind
	Field  string
	Values []any
	Suffix string
}

// PhysicalKey is a key in the store together with the kind of copy it holds.
type PhysicalKey struct {
	Kind  schema.IndexKind
	Field string
	Key   kv.Key
}

// AccessKeys returns an access key for every annotated field present in
// values, primary first, then in schema order. Fields that are absent, nil
// or empty lists are skipped.
func AccessKeys(t *schema.Table, values map[string]any) ([]AccessKey, error) {
	var (
		out       []AccessKey
		primaries int
	)
	for _, f := range t.Indexed() {
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}

		parts, err := keyParts(t, f.Name, v)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			continue
		}
		if f.Index == schema.IndexPrimary {
			primaries++
		}
		out = append(out, AccessKey{
			Kind:   f.Index,
			Field:  f.Name,
			Values: parts,
			Suffix: f.Index.Suffix(f.Name),
		})
	}

	if primaries > 1 {
		return nil, &schema.SchemaError{Table: t.Name(), Msg: "more than one primary key"}
	}
	return out, nil
}

func keyParts(t *schema.Table, field string, v any) ([]any, error) {
	var raw []any
	switch l := v.(type) {
	case []any:
		raw = l
	case []string:
		for _, s := range l {
			raw = append(raw, s)
		}
	default:
		raw = []any{v}
	}

	parts := make([]any, len(raw))
	for i, p := range raw {
		n, err := kv.NormalizePart(p)
		if err != nil {
			return nil, &schema.SchemaError{Table: t.Name(), Field: field, Err: err}
		}
		parts[i] = n
	}
	return parts, nil
}

// PhysicalKeys turns each access key into its group of physical keys:
//
//	primary  (table, value)
//	unique   (table+suffix, value)
//	index    (table+suffix, value, primaryValue)
//
// Index keys need the primary access key in the same call.
func PhysicalKeys(t *schema.Table, accessKeys []AccessKey) ([][]kv.Key, error) {
	var primary *AccessKey
	for i := range accessKeys {
		if accessKeys[i].Kind == schema.IndexPrimary {
			primary = &accessKeys[i]
			break
		}
	}

	groups := make([][]kv.Key, len(accessKeys))
	for i, ak := range accessKeys {
		space := t.Name() + ak.Suffix
		var group []kv.Key

		switch ak.Kind {
		case schema.IndexPrimary, schema.IndexUnique:
			for _, v := range ak.Values {
				group = append(group, kv.Key{space, v})
			}
		case schema.IndexIndex:
			if primary == nil {
				return nil, &schema.SchemaError{
					Table: t.Name(),
					Field: ak.Field,
					Msg:   "non-unique index key needs the primary value",
					Err:   schema.ErrNoPrimary,
				}
			}
			for _, v := range ak.Values {
				for _, pv := range primary.Values {
					group = append(group, kv.Key{space, v, pv})
				}
			}
		default:
			return nil, &schema.SchemaError{Table: t.Name(), Field: ak.Field,
				Msg: fmt.Sprintf("invalid access key kind %d", ak.Kind)}
		}
		groups[i] = group
	}
	return groups, nil
}

// Prefixes enumerates the keyspace prefixes of a table from the schema
// alone: the primary keyspace first, then every unique and index field in
// schema order. A table without a primary field has no primary prefix.
func Prefixes(t *schema.Table) []kv.Key {
	var out []kv.Key
	for _, f := range t.Indexed() {
		out = append(out, kv.Key{t.Name() + f.Index.Suffix(f.Name)})
	}
	return out
}

// ScanPrefixes returns the partial keys (table+suffix, value) covering
// every physical key of an access key. For index keys these are proper
// prefixes since the primary value is unknown.
func ScanPrefixes(t *schema.Table, ak AccessKey) []kv.Key {
	space := t.Name() + ak.Suffix
	out := make([]kv.Key, len(ak.Values))
	for i, v := range ak.Values {
		out[i] = kv.Key{space, v}
	}
	return out
}

// RecordKeys returns every physical key of a complete record, primary
// first. Repeated keys, as produced by repeated list elements, appear once.
func RecordKeys(t *schema.Table, values map[string]any) ([]PhysicalKey, error) {
	primary, ok := t.Primary()
	if !ok {
		return nil, &schema.SchemaError{Table: t.Name(), Err: schema.ErrNoPrimary}
	}
	if v, ok := values[primary.Name]; !ok || v == nil {
		return nil, &schema.SchemaError{Table: t.Name(), Field: primary.Name,
			Msg: "primary value missing", Err: schema.ErrNoPrimary}
	}

	accessKeys, err := AccessKeys(t, values)
	if err != nil {
		return nil, err
	}
	groups, err := PhysicalKeys(t, accessKeys)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []PhysicalKey
	for i, group := range groups {
		for _, key := range group {
			packed, err := key.Pack()
			if err != nil {
				return nil, &schema.SchemaError{Table: t.Name(), Field: accessKeys[i].Field, Err: err}
			}
			if seen[string(packed)] {
				continue
			}
			seen[string(packed)] = true
			out = append(out, PhysicalKey{Kind: accessKeys[i].Kind, Field: accessKeys[i].Field, Key: key})
		}
	}
	return out, nil
}

// PrimaryKey returns the physical primary key of a record.
func PrimaryKey(t *schema.Table, values map[string]any) (kv.Key, error) {
	primary, ok := t.Primary()
	if !ok {
		return nil, &schema.SchemaError{Table: t.Name(), Err: schema.ErrNoPrimary}
	}
	v, ok := values[primary.Name]
	if !ok || v == nil {
		return nil, &schema.SchemaError{Table: t.Name(), Field: primary.Name,
			Msg: "primary value missing", Err: schema.ErrNoPrimary}
	}
	part, err := kv.NormalizePart(v)
	if err != nil {
		return nil, &schema.SchemaError{Table: t.Name(), Field: primary.Name, Err: err}
	}
	return kv.Key{t.Name(), part}, nil
}
