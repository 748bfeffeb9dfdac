package row

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_CompareNumeric(t *testing.T) {
	assert.Equal(t, -1, Int64(1).Compare(Int64(2), ""))
	assert.Equal(t, 1, Int64(2).Compare(Int64(1), ""))
	assert.Equal(t, 0, Int64(5).Compare(Int64(5), ""))

	assert.True(t, Float64(-1.5).Compare(Float64(1.5), "") < 0)
	assert.True(t, Float64(0.1).Compare(Float64(0.2), "") < 0)
}

func TestValue_CompareNull(t *testing.T) {
	assert.Equal(t, 0, Null().Compare(Null(), ""))
	assert.True(t, Null().Compare(Int64(1), "") < 0)
	assert.True(t, Int64(1).Compare(Null(), "") > 0)
}

func TestValue_CompareString(t *testing.T) {
	assert.True(t, String("abc").Compare(String("abd"), "") < 0)
	assert.Equal(t, 0, String("abc").Compare(String("abc"), ""))
}

func TestValue_EncodeOrderMatchesCompare(t *testing.T) {
	vals := []Value{Int64(-100), Int64(-1), Int64(0), Int64(1), Int64(100)}
	for i := 0; i < len(vals)-1; i++ {
		a, b := vals[i].Encode(), vals[i+1].Encode()
		assert.True(t, lessBytes(a, b), "encode(%v) should sort before encode(%v)", vals[i], vals[i+1])
	}

	floats := []Value{Float64(-10.5), Float64(-0.1), Float64(0), Float64(0.1), Float64(10.5)}
	for i := 0; i < len(floats)-1; i++ {
		a, b := floats[i].Encode(), floats[i+1].Encode()
		assert.True(t, lessBytes(a, b), "encode(%v) should sort before encode(%v)", floats[i], floats[i+1])
	}
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
