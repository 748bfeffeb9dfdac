// Package row holds the tuple and composite-key types shared by every
// physical index: Value (a single column's datum), Row (a tuple aligned
// with a table's column list), and Key (an ordered search key over one
// or more columns with a total order).
package row

import (
	"bytes"
	"encoding/binary"
	"math"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Kind tags which field of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindBool
)

// Value is a single column datum. Only the field matching Kind is valid.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    string
	B    []byte
	Bool bool
}

func Null() Value                { return Value{Kind: KindNull} }
func Int64(v int64) Value        { return Value{Kind: KindInt64, I: v} }
func Float64(v float64) Value    { return Value{Kind: KindFloat64, F: v} }
func String(v string) Value      { return Value{Kind: KindString, S: v} }
func Bytes(v []byte) Value       { return Value{Kind: KindBytes, B: v} }
func Bool(v bool) Value          { return Value{Kind: KindBool, Bool: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// stringCompare compares byte-wise for "" or "binary" and otherwise
// through a collator; golang.org/x/text/collate collators are not
// goroutine-safe, so it creates a fresh one per non-binary comparison
// rather than caching one (mirrors the teacher's
// CollationEngine.newCollator, which is documented not to be shared).
func stringCompare(a, b, collation string) int {
	if collation == "" || collation == "binary" {
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	}
	tag, err := language.Parse(collation)
	if err != nil {
		tag = language.Und
	}
	c := collate.New(tag, collate.IgnoreCase, collate.Loose)
	return c.CompareString(a, b)
}

// Compare orders two values of the same Kind. NULL ordering relative to
// non-NULL values is the caller's responsibility (Key.Compare applies
// the table's NullsOrder policy before delegating here); Compare itself
// treats NULL as always equal to NULL and less than any non-NULL value.
func (v Value) Compare(other Value, collation string) int {
	if v.IsNull() && other.IsNull() {
		return 0
	}
	if v.IsNull() {
		return -1
	}
	if other.IsNull() {
		return 1
	}
	switch v.Kind {
	case KindInt64:
		switch {
		case v.I < other.I:
			return -1
		case v.I > other.I:
			return 1
		default:
			return 0
		}
	case KindFloat64:
		a, b := v.F, other.F
		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			return 0
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case KindBool:
		if v.Bool == other.Bool {
			return 0
		}
		if !v.Bool {
			return -1
		}
		return 1
	case KindString:
		return stringCompare(v.S, other.S, collation)
	case KindBytes:
		return bytes.Compare(v.B, other.B)
	default:
		return 0
	}
}

// Encode produces a byte encoding suitable for use as (part of) an
// ordered-map key: fixed-width for numeric kinds so byte comparison
// matches Compare's numeric ordering, length-prefixed for variable kinds.
func (v Value) Encode() []byte {
	switch v.Kind {
	case KindNull:
		return []byte{0x00}
	case KindInt64:
		buf := make([]byte, 9)
		buf[0] = 0x01
		// Flip the sign bit so two's-complement order matches byte order.
		binary.BigEndian.PutUint64(buf[1:], uint64(v.I)^(1<<63))
		return buf
	case KindFloat64:
		buf := make([]byte, 9)
		buf[0] = 0x02
		bits := math.Float64bits(v.F)
		if v.F >= 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		binary.BigEndian.PutUint64(buf[1:], bits)
		return buf
	case KindBool:
		if v.Bool {
			return []byte{0x03, 0x01}
		}
		return []byte{0x03, 0x00}
	case KindString:
		return encodeVariable(0x04, []byte(v.S))
	case KindBytes:
		return encodeVariable(0x05, v.B)
	default:
		return []byte{0xff}
	}
}

func encodeVariable(tag byte, data []byte) []byte {
	buf := make([]byte, 0, 5+len(data))
	buf = append(buf, tag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, data...)
	return buf
}
