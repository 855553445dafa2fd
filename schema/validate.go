package schema

import (
	"fmt"
	"math"
)

// Validate coerces values to the table's field types, fills defaults,
// reports missing required fields and drops keys that are not fields. The
// input map is not modified.
func (t *Table) Validate(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.fields))
	var issues []Issue

	for _, f := range t.fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			switch {
			case f.Default != nil:
				v = f.Default
			case f.Optional:
				continue
			default:
				issues = append(issues, Issue{Field: f.Name, Msg: "required"})
				continue
			}
		}

		coerced, err := coerce(f.Type, v)
		if err != nil {
			issues = append(issues, Issue{Field: f.Name, Msg: err.Error()})
			continue
		}
		out[f.Name] = coerced
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Table: t.name, Issues: issues}
	}
	if t.check != nil {
		if err := t.check(out); err != nil {
			return nil, &ValidationError{Table: t.name, Err: err}
		}
	}
	return out, nil
}

// Coerce converts a query value for field. List fields also accept a single
// element, which matches records whose list contains it.
func (t *Table) Coerce(field string, v any) (any, error) {
	f, ok := t.Field(field)
	if !ok {
		return v, nil
	}
	if f.Type.IsList() {
		if _, isList := v.([]any); !isList && !isSlice(v) {
			return coerce(elemType(f.Type), v)
		}
	}
	return coerce(f.Type, v)
}

func elemType(t FieldType) FieldType {
	switch t {
	case TypeStringList:
		return TypeString
	case TypeIntList:
		return TypeInt
	default:
		return t
	}
}

func isSlice(v any) bool {
	switch v.(type) {
	case []string, []int, []int64:
		return true
	default:
		return false
	}
}

type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
}

func coerce(t FieldType, v any) (any, error) {
	switch t {
	case TypeAny:
		return v, nil
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeStringList:
		return toList(v, TypeString)
	case TypeIntList:
		return toList(v, TypeInt)
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

func toInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("expected int, got %v", n)
		}
		return int64(n), nil
	case number:
		return n.Int64()
	}
	return nil, fmt.Errorf("expected int, got %T", v)
}

func toFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case number:
		return n.Float64()
	}
	i, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("expected float, got %T", v)
	}
	return float64(i.(int64)), nil
}

func toList(v any, elem FieldType) (any, error) {
	var items []any
	switch l := v.(type) {
	case []any:
		items = l
	case []string:
		for _, s := range l {
			items = append(items, s)
		}
	case []int:
		for _, i := range l {
			items = append(items, i)
		}
	case []int64:
		for _, i := range l {
			items = append(items, i)
		}
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}

	out := make([]any, len(items))
	for i, item := range items {
		c, err := coerce(elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}
