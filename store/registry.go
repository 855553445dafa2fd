package store

import (
	"fmt"
	"slices"

	"github.com/jacentio/lattice/schema"
)

// Reference is a relation pointing at a table, seen from the target side.
type Reference struct {
	// SourceTable declares the relation named Name.
	SourceTable string
	Name        string
	Relation    schema.Relation
}

// Registry holds the compiled tables of a DB and the relations between them.
type Registry struct {
	tables       map[string]*schema.Table
	order        []string
	referencedBy map[string][]Reference
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:       make(map[string]*schema.Table),
		referencedBy: make(map[string][]Reference),
	}
}

// Register adds a table. Table names are unique.
func (r *Registry) Register(t *schema.Table) error {
	if _, dup := r.tables[t.Name()]; dup {
		return &SchemaError{Table: t.Name(), Msg: "registered twice"}
	}
	r.tables[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Validate checks every relation: its target table must be registered and
// its foreign key must be a field of the target.
func (r *Registry) Validate() error {
	r.referencedBy = make(map[string][]Reference)
	for _, name := range r.order {
		t := r.tables[name]
		for _, relName := range t.Relations() {
			rel, _ := t.Relation(relName)
			target, ok := r.tables[rel.Table]
			if !ok {
				return &SchemaError{Table: name,
					Msg: fmt.Sprintf("relation '%s' targets unknown table '%s'", relName, rel.Table),
					Err: ErrUnknownTable}
			}
			if _, ok := target.Field(rel.ForeignKey); !ok {
				return &SchemaError{Table: name,
					Msg: fmt.Sprintf("relation '%s': foreign key '%s' is not a field of '%s'",
						relName, rel.ForeignKey, rel.Table)}
			}
			r.referencedBy[rel.Table] = append(r.referencedBy[rel.Table], Reference{
				SourceTable: name,
				Name:        relName,
				Relation:    rel,
			})
		}
	}
	return nil
}

// Table returns a registered table.
func (r *Registry) Table(name string) (*schema.Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Names returns the registered table names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// ReferencedBy returns the relations that target the named table.
func (r *Registry) ReferencedBy(table string) []Reference {
	return r.referencedBy[table]
}
