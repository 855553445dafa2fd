package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of a set of table definitions:
//
//	tables:
//	  - name: users
//	    fields:
//	      - {name: id, type: string, index: primary}
//	      - {name: email, type: string, index: unique}
//	      - {name: age, type: int, optional: true}
//	    relations:
//	      posts: {kind: many, table: posts, localKey: id, foreignKey: authorId}
type File struct {
	Tables []TableSpec `yaml:"tables"`
}

type TableSpec struct {
	Name      string                  `yaml:"name"`
	Fields    []FieldSpec             `yaml:"fields"`
	Relations map[string]RelationSpec `yaml:"relations,omitempty"`
}

type FieldSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Index    string `yaml:"index,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
	Default  any    `yaml:"default,omitempty"`
}

type RelationSpec struct {
	Kind       string `yaml:"kind"`
	Table      string `yaml:"table"`
	LocalKey   string `yaml:"localKey"`
	ForeignKey string `yaml:"foreignKey"`
}

// LoadFile reads and compiles every table of a YAML schema file.
func LoadFile(path string) ([]*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load parses a YAML schema and compiles its tables. Unknown keys are
// rejected so typos surface early.
func Load(r io.Reader) ([]*Table, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	tables := make([]*Table, 0, len(file.Tables))
	for _, spec := range file.Tables {
		def, err := spec.Definition()
		if err != nil {
			return nil, err
		}
		t, err := Compile(def)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// Definition converts the YAML form into a Definition.
func (s TableSpec) Definition() (Definition, error) {
	def := Definition{Name: s.Name, Relations: map[string]Relation{}}

	for _, fs := range s.Fields {
		typ, err := ParseFieldType(fs.Type)
		if err != nil {
			return Definition{}, &SchemaError{Table: s.Name, Field: fs.Name, Err: err}
		}
		kind, err := ParseIndexKind(s.Name, fs.Name, fs.Index)
		if err != nil {
			return Definition{}, err
		}
		def.Fields = append(def.Fields, Field{
			Name:     fs.Name,
			Type:     typ,
			Index:    kind,
			Optional: fs.Optional,
			Default:  fs.Default,
		})
	}

	for name, rs := range s.Relations {
		switch rs.Kind {
		case "one":
			def.Relations[name] = ToOne(rs.Table, rs.LocalKey, rs.ForeignKey)
		case "many":
			def.Relations[name] = ToMany(rs.Table, rs.LocalKey, rs.ForeignKey)
		default:
			return Definition{}, &SchemaError{Table: s.Name,
				Msg: fmt.Sprintf("relation '%s': kind must be one or many, got %q", name, rs.Kind)}
		}
	}
	return def, nil
}
