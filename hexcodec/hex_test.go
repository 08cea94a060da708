package hexcodec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
	assert.Equal(t, "0201060AFF", Encode([]byte{0x02, 0x01, 0x06, 0x0a, 0xff}))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{name: "plain", in: "020106", want: []byte{0x02, 0x01, 0x06}},
		{name: "lowercase", in: "abcd", want: []byte{0xab, 0xcd}},
		{name: "prefix and spaces", in: "0x AB CD", want: []byte{0xab, 0xcd}},
		{name: "prefix per byte", in: "0x02 0x01 0x06", want: []byte{0x02, 0x01, 0x06}},
		{name: "tabs and newlines", in: "02\t01\n06\r\n", want: []byte{0x02, 0x01, 0x06}},
		{name: "empty", in: "", want: []byte{}},
		{name: "only prefix", in: "0x", want: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_InvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "odd length", in: "ABC"},
		{name: "odd after normalizing", in: "0x A B C"},
		{name: "non hex pair", in: "ZZ"},
		{name: "non hex in the middle", in: "0201G6"},
		{name: "uppercase prefix is not stripped", in: "0XAB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFormat), "got %v", err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	inputs := [][]byte{
		{},
		{0x00},
		{0xff, 0x00, 0x7f},
		all,
	}
	for _, b := range inputs {
		got, err := Decode(Encode(b))
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
}
