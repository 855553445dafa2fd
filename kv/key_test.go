package kv

import (
	"bytes"
	"errors"
	"math"
	"sort"
	"testing"
)

func TestPackUnpack_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		key  Key
	}{
		{"string", Key{"users", "u1"}},
		{"int", Key{"users", int64(-42)}},
		{"float", Key{"users", 3.25}},
		{"negative float", Key{"users", -0.5}},
		{"bool", Key{"flags", true, false}},
		{"bytes with zero", Key{"blobs", []byte{0x00, 0x01, 0x00}}},
		{"string with zero", Key{"s", "a\x00b"}},
		{"index key", Key{"users_by_age", int64(30), "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := tt.key.Pack()
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			got, err := Unpack(packed)
			if err != nil {
				t.Fatalf("Unpack failed: %v", err)
			}
			if !got.Equal(tt.key) {
				t.Errorf("expected %s, got %s", tt.key, got)
			}
		})
	}
}

func TestPack_NormalizesIntegers(t *testing.T) {
	a := Key{"t", 7}.MustPack()
	b := Key{"t", int64(7)}.MustPack()
	if !bytes.Equal(a, b) {
		t.Error("expected int and int64 parts to encode identically")
	}
}

func TestPack_UnsupportedPart(t *testing.T) {
	_, err := Key{"t", map[string]any{}}.Pack()
	if !errors.Is(err, ErrUnsupportedKeyPart) {
		t.Errorf("expected ErrUnsupportedKeyPart, got %v", err)
	}

	_, err = Key{"t", uint64(math.MaxUint64)}.Pack()
	if !errors.Is(err, ErrUnsupportedKeyPart) {
		t.Errorf("expected ErrUnsupportedKeyPart for overflow, got %v", err)
	}
}

func TestPack_PreservesOrder(t *testing.T) {
	ordered := []Key{
		{"t", int64(math.MinInt64)},
		{"t", int64(-1)},
		{"t", int64(0)},
		{"t", int64(1)},
		{"t", int64(1 << 40)},
	}
	assertOrdered(t, ordered)

	floats := []Key{
		{"t", math.Inf(-1)},
		{"t", -2.5},
		{"t", -0.1},
		{"t", 0.0},
		{"t", 0.1},
		{"t", 2.5},
		{"t", math.Inf(1)},
	}
	assertOrdered(t, floats)

	strs := []Key{
		{"t", ""},
		{"t", "a"},
		{"t", "a\x00"},
		{"t", "ab"},
		{"t", "b"},
	}
	assertOrdered(t, strs)
}

func assertOrdered(t *testing.T, keys []Key) {
	t.Helper()
	packed := make([][]byte, len(keys))
	for i, k := range keys {
		packed[i] = k.MustPack()
	}
	if !sort.SliceIsSorted(packed, func(i, j int) bool {
		return bytes.Compare(packed[i], packed[j]) < 0
	}) {
		t.Errorf("packed keys are not in tuple order: %v", keys)
	}
}

func TestPack_PrefixProperty(t *testing.T) {
	prefix := Key{"users_by_name", "ann"}.MustPack()

	match := Key{"users_by_name", "ann", "u1"}.MustPack()
	if !bytes.HasPrefix(match, prefix) {
		t.Error("expected full key to start with packed prefix")
	}

	longer := Key{"users_by_name", "anna", "u2"}.MustPack()
	if bytes.HasPrefix(longer, prefix) {
		t.Error("expected 'anna' not to match the 'ann' prefix")
	}
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		name     string
		prefix   []byte
		expected []byte
	}{
		{"simple", []byte{0x01, 0x02}, []byte{0x01, 0x03}},
		{"trailing ff", []byte{0x01, 0xFF}, []byte{0x02}},
		{"all ff", []byte{0xFF, 0xFF}, nil},
		{"empty", []byte{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrefixEnd(tt.prefix)
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("expected %x, got %x", tt.expected, got)
			}
		})
	}
}

func TestUnpack_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"unknown tag", []byte{0x99}},
		{"unterminated string", []byte{tagString, 'a'}},
		{"short int", []byte{tagInt, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unpack(tt.data); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestKey_HasPrefix(t *testing.T) {
	k := Key{"posts_by_author", "a1", "p1"}
	if !k.HasPrefix(Key{"posts_by_author", "a1"}) {
		t.Error("expected prefix match")
	}
	if k.HasPrefix(Key{"posts_by_author", "a2"}) {
		t.Error("expected no prefix match for different value")
	}
	if k.HasPrefix(Key{"posts_by_author", "a1", "p1", "x"}) {
		t.Error("expected no match for longer prefix")
	}
}

func TestKey_String(t *testing.T) {
	got := Key{"users", int64(1), true}.String()
	if got != `("users", 1, true)` {
		t.Errorf("unexpected rendering %s", got)
	}
}
