package kv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Key is an ordered tuple of key parts.
type Key []any

// Type tags of the packed encoding. Parts of different types order by tag.
const (
	tagBytes  byte = 0x01
	tagString byte = 0x02
	tagInt    byte = 0x15
	tagFloat  byte = 0x21
	tagFalse  byte = 0x26
	tagTrue   byte = 0x27
)

// NormalizePart converts a Go value into one of the canonical key part types
// (string, []byte, int64, float64, bool).
func NormalizePart(v any) (any, error) {
	switch p := v.(type) {
	case string, []byte, int64, float64, bool:
		return p, nil
	case int:
		return int64(p), nil
	case int8:
		return int64(p), nil
	case int16:
		return int64(p), nil
	case int32:
		return int64(p), nil
	case uint8:
		return int64(p), nil
	case uint16:
		return int64(p), nil
	case uint32:
		return int64(p), nil
	case uint:
		if uint64(p) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedKeyPart, p)
		}
		return int64(p), nil
	case uint64:
		if p > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedKeyPart, p)
		}
		return int64(p), nil
	case float32:
		return float64(p), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKeyPart, v)
	}
}

// Pack encodes the key into its order-preserving byte form.
func (k Key) Pack() ([]byte, error) {
	var buf []byte
	for _, part := range k {
		p, err := NormalizePart(part)
		if err != nil {
			return nil, err
		}
		switch v := p.(type) {
		case []byte:
			buf = appendEscaped(append(buf, tagBytes), v)
		case string:
			buf = appendEscaped(append(buf, tagString), []byte(v))
		case int64:
			buf = append(buf, tagInt)
			buf = binary.BigEndian.AppendUint64(buf, uint64(v)^(1<<63))
		case float64:
			bits := math.Float64bits(v)
			if bits&(1<<63) != 0 {
				bits = ^bits
			} else {
				bits ^= 1 << 63
			}
			buf = append(buf, tagFloat)
			buf = binary.BigEndian.AppendUint64(buf, bits)
		case bool:
			if v {
				buf = append(buf, tagTrue)
			} else {
				buf = append(buf, tagFalse)
			}
		}
	}
	return buf, nil
}

// MustPack is Pack for keys known to be valid. It panics on error.
func (k Key) MustPack() []byte {
	b, err := k.Pack()
	if err != nil {
		panic(err)
	}
	return b
}

// appendEscaped writes b terminated by 0x00, escaping embedded zero bytes as
// 0x00 0xFF so the terminator stays unambiguous and ordering is preserved.
func appendEscaped(buf, b []byte) []byte {
	for _, c := range b {
		buf = append(buf, c)
		if c == 0x00 {
			buf = append(buf, 0xFF)
		}
	}
	return append(buf, 0x00)
}

// Unpack decodes a packed key.
func Unpack(b []byte) (Key, error) {
	var key Key
	for i := 0; i < len(b); {
		tag := b[i]
		i++
		switch tag {
		case tagBytes, tagString:
			var out []byte
			terminated := false
			for i < len(b) {
				c := b[i]
				i++
				if c != 0x00 {
					out = append(out, c)
					continue
				}
				if i < len(b) && b[i] == 0xFF {
					out = append(out, 0x00)
					i++
					continue
				}
				terminated = true
				break
			}
			if !terminated {
				return nil, fmt.Errorf("%w: unterminated part", ErrInvalidKey)
			}
			if tag == tagString {
				key = append(key, string(out))
			} else {
				if out == nil {
					out = []byte{}
				}
				key = append(key, out)
			}
		case tagInt, tagFloat:
			if i+8 > len(b) {
				return nil, fmt.Errorf("%w: short numeric part", ErrInvalidKey)
			}
			bits := binary.BigEndian.Uint64(b[i : i+8])
			i += 8
			if tag == tagInt {
				key = append(key, int64(bits^(1<<63)))
				continue
			}
			if bits&(1<<63) != 0 {
				bits ^= 1 << 63
			} else {
				bits = ^bits
			}
			key = append(key, math.Float64frombits(bits))
		case tagFalse:
			key = append(key, false)
		case tagTrue:
			key = append(key, true)
		default:
			return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidKey, tag)
		}
	}
	return key, nil
}

// PrefixEnd returns the smallest byte string greater than every string that
// starts with prefix, or nil if there is none.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// HasPrefix reports whether k starts with all parts of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return prefix.Equal(k[:len(prefix)])
}

// Equal reports whether both keys encode to the same bytes.
func (k Key) Equal(other Key) bool {
	a, errA := k.Pack()
	b, errB := other.Pack()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// String renders the key as a tuple, e.g. ("users_by_email", "a@b.c", "u1").
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		switch v := p.(type) {
		case string:
			parts[i] = fmt.Sprintf("%q", v)
		case []byte:
			parts[i] = fmt.Sprintf("0x%x", v)
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
