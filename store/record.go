package store

import (
	"encoding/json"
	"maps"

	"github.com/jacentio/lattice/schema"
)

// Record is a logical record: validated values plus the versionstamp of the
// commit that last wrote it. A record without a versionstamp has not been
// persisted.
type Record struct {
	Values       map[string]any
	Versionstamp string

	// Relations holds the relations resolved through Query.Include.
	Relations map[string]Related
}

// Related is a resolved relation. To-one relations set One, which is nil
// when no target record matched; to-many relations set Many.
type Related struct {
	Kind schema.RelationKind
	One  *Record
	Many []Record
}

// Get returns the value of a field.
func (r Record) Get(field string) any {
	return r.Values[field]
}

// One returns a resolved to-one relation.
func (r Record) One(name string) *Record {
	return r.Relations[name].One
}

// Many returns a resolved to-many relation.
func (r Record) Many(name string) []Record {
	return r.Relations[name].Many
}

// MarshalJSON flattens the record into one object: its values, its
// versionstamp and every resolved relation under the relation name.
func (r Record) MarshalJSON() ([]byte, error) {
	out := maps.Clone(r.Values)
	if out == nil {
		out = map[string]any{}
	}
	out["versionstamp"] = r.Versionstamp
	for name, rel := range r.Relations {
		if rel.Kind == schema.ToManyRelation {
			many := rel.Many
			if many == nil {
				many = []Record{}
			}
			out[name] = many
			continue
		}
		out[name] = rel.One
	}
	return json.Marshal(out)
}

// Query selects records of a table.
type Query struct {
	// Where holds equality predicates. A scalar predicate on a list field
	// matches records whose list contains it. The key "versionstamp"
	// matches the record's versionstamp.
	Where map[string]any

	// Select keeps only the named fields. The versionstamp is always kept.
	Select []string

	// Include resolves declared relations. A nil query includes every
	// related record with all its fields; a query narrows them with its own
	// Where, Select, Include and advisory options.
	Include map[string]*Query

	OrderBy  []Order
	Distinct []string
	Skip     int
	Take     int
}

// Order sorts results by one field.
type Order struct {
	Field string
	Desc  bool
}

// Asc sorts by field in ascending order.
func Asc(field string) Order { return Order{Field: field} }

// Desc sorts by field in descending order.
func Desc(field string) Order { return Order{Field: field, Desc: true} }
