package kv

import (
	"testing"
)

func TestEncodeDecodeValue(t *testing.T) {
	value := map[string]any{
		"name":  "ann",
		"age":   int64(31),
		"score": 9.5,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"n": int64(2)},
	}

	data, err := EncodeValue(value, FormatVersionstamp(7))
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}

	got, vs, err := DecodeValue(data)
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if vs != FormatVersionstamp(7) {
		t.Errorf("expected versionstamp %q, got %q", FormatVersionstamp(7), vs)
	}
	if got["age"] != int64(31) {
		t.Errorf("expected int64 age, got %T %v", got["age"], got["age"])
	}
	if got["score"] != 9.5 {
		t.Errorf("expected float score, got %T %v", got["score"], got["score"])
	}
	meta, ok := got["meta"].(map[string]any)
	if !ok || meta["n"] != int64(2) {
		t.Errorf("expected nested int64, got %v", got["meta"])
	}
}

func TestDecodeValue_Invalid(t *testing.T) {
	if _, _, err := DecodeValue([]byte("not json")); err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestVersionstamp_Ordering(t *testing.T) {
	a := FormatVersionstamp(9)
	b := FormatVersionstamp(10)
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
	if len(a) != 20 {
		t.Errorf("expected 20 characters, got %d", len(a))
	}

	n, err := ParseVersionstamp(b)
	if err != nil || n != 10 {
		t.Errorf("expected 10, got %d (%v)", n, err)
	}
}
