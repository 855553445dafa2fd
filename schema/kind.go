package schema

import (
	"fmt"
	"strings"
)

// IndexKind is the index annotation of a field.
type IndexKind uint8

const (
	IndexNone IndexKind = iota
	IndexPrimary
	IndexUnique
	IndexIndex
)

func (k IndexKind) String() string {
	switch k {
	case IndexPrimary:
		return "primary"
	case IndexUnique:
		return "unique"
	case IndexIndex:
		return "index"
	default:
		return ""
	}
}

// Suffix returns the keyspace suffix of a unique or index field, or "" for
// primary and unannotated fields.
func (k IndexKind) Suffix(field string) string {
	switch k {
	case IndexUnique:
		return "_by_unique_" + field
	case IndexIndex:
		return "_by_" + field
	default:
		return ""
	}
}

// ParseIndexKind parses an annotation string such as "unique". The string
// may list several comma separated kinds, which is rejected since a field
// carries at most one.
func ParseIndexKind(table, field, annotation string) (IndexKind, error) {
	if strings.TrimSpace(annotation) == "" {
		return IndexNone, nil
	}

	var kinds []IndexKind
	for _, part := range strings.Split(annotation, ",") {
		part = strings.TrimSpace(part)
		switch part {
		case "primary":
			kinds = append(kinds, IndexPrimary)
		case "unique":
			kinds = append(kinds, IndexUnique)
		case "index":
			kinds = append(kinds, IndexIndex)
		default:
			return IndexNone, &SchemaError{
				Table: table,
				Field: field,
				Msg: fmt.Sprintf("invalid index annotation %q: supported values are primary, unique, index, got %q",
					annotation, part),
			}
		}
	}

	if len(kinds) > 1 {
		quoted := make([]string, len(kinds))
		for i, k := range kinds {
			quoted[i] = "'" + k.String() + "'"
		}
		return IndexNone, &SchemaError{
			Table: table,
			Field: field,
			Msg: fmt.Sprintf("more than one index kind (%s); use only one of primary, unique or index",
				strings.Join(quoted, " and ")),
		}
	}
	return kinds[0], nil
}

// FieldType is the value type of a field.
type FieldType uint8

const (
	TypeAny FieldType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeStringList
	TypeIntList
)

var fieldTypeNames = map[FieldType]string{
	TypeAny:        "any",
	TypeString:     "string",
	TypeInt:        "int",
	TypeFloat:      "float",
	TypeBool:       "bool",
	TypeStringList: "[]string",
	TypeIntList:    "[]int",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// ParseFieldType parses a type name as written in schema files.
func ParseFieldType(name string) (FieldType, error) {
	for t, n := range fieldTypeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeAny, fmt.Errorf("unknown field type %q", name)
}

// IsList reports whether values of the type are sequences.
func (t FieldType) IsList() bool {
	return t == TypeStringList || t == TypeIntList
}

// keyable reports whether values of the type can be used as key parts.
func (t FieldType) keyable() bool {
	return t != TypeAny
}
