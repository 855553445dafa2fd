package kv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// envelope is the stored form of a value in the byte-oriented backends.
type envelope struct {
	Versionstamp string         `json:"vs"`
	Value        map[string]any `json:"v"`
}

// EncodeValue serializes a value and its versionstamp for byte-oriented
// backends.
func EncodeValue(value map[string]any, versionstamp string) ([]byte, error) {
	data, err := json.Marshal(envelope{Versionstamp: versionstamp, Value: value})
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}

// DecodeValue is the inverse of EncodeValue. Numbers come back as int64 when
// integral and float64 otherwise.
func DecodeValue(data []byte) (map[string]any, string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, "", fmt.Errorf("decode value: %w", err)
	}
	for k, v := range env.Value {
		env.Value[k] = Normalize(v)
	}
	return env.Value, env.Versionstamp, nil
}

// number is satisfied by json.Number and attributevalue.Number.
type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

// Normalize recursively replaces decoder number types with int64 or float64
// and unifies nested maps and slices. A number without a fraction becomes
// int64 even if it was written as a float, so 2.0 reads back as 2; the store
// restores float64 for fields typed float, while untyped values keep int64.
func Normalize(v any) any {
	switch x := v.(type) {
	case number:
		if n, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = Normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = Normalize(e)
		}
		return x
	default:
		return v
	}
}
