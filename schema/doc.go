// Package schema describes tables: their fields, index annotations and
// relations.
//
// A Definition is compiled once into an immutable Table. The compiled table
// exposes a static field to index kind mapping that key derivation reads,
// and validates records before they are written.
//
//	users := schema.MustCompile(schema.Definition{
//		Name: "users",
//		Fields: []schema.Field{
//			{Name: "id", Type: schema.TypeString, Index: schema.IndexPrimary},
//			{Name: "email", Type: schema.TypeString, Index: schema.IndexUnique},
//			{Name: "team", Type: schema.TypeString, Index: schema.IndexIndex, Optional: true},
//		},
//		Relations: map[string]schema.Relation{
//			"posts": schema.ToMany("posts", "id", "authorId"),
//		},
//	})
package schema
