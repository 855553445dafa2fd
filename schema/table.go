package schema

import (
	"fmt"
	"maps"
	"slices"
)

// Field describes one field of a table.
type Field struct {
	Name  string
	Type  FieldType
	Index IndexKind

	// Optional fields may be missing from a record. A field with a Default
	// is filled in when missing and is never reported as required.
	Optional bool
	Default  any
}

// RelationKind tells whether a relation yields one record or a list.
type RelationKind uint8

const (
	ToOneRelation RelationKind = iota + 1
	ToManyRelation
)

func (k RelationKind) String() string {
	switch k {
	case ToOneRelation:
		return "one"
	case ToManyRelation:
		return "many"
	default:
		return "unknown"
	}
}

// Relation links records of one table to records of Table whose ForeignKey
// equals the source record's LocalKey.
type Relation struct {
	Kind       RelationKind
	Table      string
	LocalKey   string
	ForeignKey string
}

// ToOne declares a relation resolving to at most one record.
func ToOne(table, localKey, foreignKey string) Relation {
	return Relation{Kind: ToOneRelation, Table: table, LocalKey: localKey, ForeignKey: foreignKey}
}

// ToMany declares a relation resolving to a list of records.
func ToMany(table, localKey, foreignKey string) Relation {
	return Relation{Kind: ToManyRelation, Table: table, LocalKey: localKey, ForeignKey: foreignKey}
}

// Definition is the uncompiled description of a table.
type Definition struct {
	Name      string
	Fields    []Field
	Relations map[string]Relation

	// Check runs after coercion on every validated record.
	Check func(values map[string]any) error
}

// Table is a compiled, immutable table definition. It carries a static
// field to index kind table consumed by key derivation.
type Table struct {
	name      string
	fields    []Field
	byName    map[string]int
	primary   int
	indexed   []int
	relations map[string]Relation
	check     func(map[string]any) error
}

// Compile checks a definition and builds its index table. A definition
// without a primary field compiles; writes to it fail later.
func Compile(def Definition) (*Table, error) {
	if def.Name == "" {
		return nil, &SchemaError{Msg: "table name is empty"}
	}

	t := &Table{
		name:      def.Name,
		fields:    slices.Clone(def.Fields),
		byName:    make(map[string]int, len(def.Fields)),
		primary:   -1,
		relations: maps.Clone(def.Relations),
		check:     def.Check,
	}
	if t.relations == nil {
		t.relations = map[string]Relation{}
	}

	for i, f := range t.fields {
		if f.Name == "" {
			return nil, &SchemaError{Table: def.Name, Msg: fmt.Sprintf("field %d has no name", i)}
		}
		if f.Name == "versionstamp" {
			return nil, &SchemaError{Table: def.Name, Field: f.Name, Msg: "name is reserved"}
		}
		if _, dup := t.byName[f.Name]; dup {
			return nil, &SchemaError{Table: def.Name, Field: f.Name, Msg: "declared twice"}
		}
		t.byName[f.Name] = i

		if f.Index == IndexNone {
			continue
		}
		if !f.Type.keyable() {
			return nil, &SchemaError{Table: def.Name, Field: f.Name,
				Msg: fmt.Sprintf("%s index on a field of type %s", f.Index, f.Type)}
		}
		if f.Index == IndexPrimary {
			if t.primary >= 0 {
				return nil, &SchemaError{Table: def.Name, Field: f.Name,
					Msg: "more than one primary field"}
			}
			if f.Type.IsList() {
				return nil, &SchemaError{Table: def.Name, Field: f.Name,
					Msg: "primary field must be scalar"}
			}
			t.primary = i
		}
	}

	if t.primary >= 0 {
		t.indexed = append(t.indexed, t.primary)
	}
	for i, f := range t.fields {
		if f.Index != IndexNone && f.Index != IndexPrimary {
			t.indexed = append(t.indexed, i)
		}
	}

	for name, rel := range t.relations {
		if rel.Kind != ToOneRelation && rel.Kind != ToManyRelation {
			return nil, &SchemaError{Table: def.Name, Msg: fmt.Sprintf("relation '%s' has no kind", name)}
		}
		if _, ok := t.byName[rel.LocalKey]; !ok {
			return nil, &SchemaError{Table: def.Name,
				Msg: fmt.Sprintf("relation '%s': local key '%s' is not a field", name, rel.LocalKey)}
		}
	}
	return t, nil
}

// MustCompile is Compile for definitions known to be valid.
func MustCompile(def Definition) *Table {
	t, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Name() string {
	return t.name
}

// Fields returns the fields in schema order.
func (t *Table) Fields() []Field {
	return slices.Clone(t.fields)
}

// Field looks up a field by name.
func (t *Table) Field(name string) (Field, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// Primary returns the primary field.
func (t *Table) Primary() (Field, bool) {
	if t.primary < 0 {
		return Field{}, false
	}
	return t.fields[t.primary], true
}

// Indexed returns the annotated fields, primary first, then unique and
// index fields in schema order.
func (t *Table) Indexed() []Field {
	out := make([]Field, len(t.indexed))
	for i, idx := range t.indexed {
		out[i] = t.fields[idx]
	}
	return out
}

// Relation looks up a declared relation.
func (t *Table) Relation(name string) (Relation, bool) {
	rel, ok := t.relations[name]
	return rel, ok
}

// Relations returns the declared relation names in sorted order.
func (t *Table) Relations() []string {
	return slices.Sorted(maps.Keys(t.relations))
}
