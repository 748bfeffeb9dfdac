package row

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeRow serializes a Row for storage as an OrderedMap/HashMap value.
// This is an on-disk format, not a wire protocol; it is private to the
// table core's own maps.
func EncodeRow(r Row) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(r)))
	for _, v := range r {
		buf = append(buf, encodeValueTagged(v)...)
	}
	return buf
}

func encodeValueTagged(v Value) []byte {
	enc := v.Encode()
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(enc)))
	return append(lenBuf, enc...)
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(b []byte) (Row, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("row: truncated header")
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	out := make(Row, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("row: truncated value length")
		}
		l := binary.BigEndian.Uint32(b)
		b = b[4:]
		if uint32(len(b)) < l {
			return nil, fmt.Errorf("row: truncated value")
		}
		v, err := decodeValue(b[:l])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		b = b[l:]
	}
	return out, nil
}

func decodeValue(b []byte) (Value, error) {
	if len(b) == 0 {
		return Null(), fmt.Errorf("row: empty value encoding")
	}
	switch b[0] {
	case 0x00:
		return Null(), nil
	case 0x01:
		if len(b) < 9 {
			return Null(), fmt.Errorf("row: truncated int64")
		}
		bits := binary.BigEndian.Uint64(b[1:9])
		return Int64(int64(bits ^ (1 << 63))), nil
	case 0x02:
		if len(b) < 9 {
			return Null(), fmt.Errorf("row: truncated float64")
		}
		bits := binary.BigEndian.Uint64(b[1:9])
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return Float64(math.Float64frombits(bits)), nil
	case 0x03:
		if len(b) < 2 {
			return Null(), fmt.Errorf("row: truncated bool")
		}
		return Bool(b[1] == 0x01), nil
	case 0x04:
		s, err := decodeVariable(b)
		if err != nil {
			return Null(), err
		}
		return String(string(s)), nil
	case 0x05:
		s, err := decodeVariable(b)
		if err != nil {
			return Null(), err
		}
		return Bytes(s), nil
	default:
		return Null(), fmt.Errorf("row: unknown value tag %d", b[0])
	}
}

func decodeVariable(b []byte) ([]byte, error) {
	if len(b) < 5 {
		return nil, fmt.Errorf("row: truncated variable header")
	}
	l := binary.BigEndian.Uint32(b[1:5])
	if uint32(len(b)-5) < l {
		return nil, fmt.Errorf("row: truncated variable data")
	}
	out := make([]byte, l)
	copy(out, b[5:5+l])
	return out, nil
}
