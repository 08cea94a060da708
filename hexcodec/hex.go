// Package hexcodec converts between displayed hex text and raw payload bytes.
package hexcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidFormat is returned when text does not encode whole bytes of hex.
var ErrInvalidFormat = errors.New("invalid hex format")

// Encode returns b as uppercase hex with no prefix and no separators.
func Encode(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// Decode parses hex text such as "0x02 01 06". Every "0x" occurrence and all
// whitespace are removed before decoding.
func Decode(s string) ([]byte, error) {
	clean := normalize(s)
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrInvalidFormat, len(clean))
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return b, nil
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "0x", "")
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
