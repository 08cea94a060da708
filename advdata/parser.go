// Package advdata splits BLE advertising payloads into AD structures.
//
// A payload is a run of segments, each made of a length byte, a type byte and
// length-1 value bytes. Parsing is best effort: a zero length byte ends the
// walk, and a trailing segment that does not fit is dropped without error.
package advdata

import (
	"strings"
	"unicode/utf8"

	"ble-adv-parser/hexcodec"
)

// Item is one decoded AD structure.
type Item struct {
	// Length is the declared length byte (type byte + value bytes).
	Length   int    `json:"length"`
	TypeCode byte   `json:"type_code"`
	TypeName string `json:"type"`
	// Value is the payload as 0x-prefixed uppercase hex.
	Value string `json:"value"`
	// TextValue is set only for local name types whose payload is valid UTF-8.
	TextValue *string `json:"text_value,omitempty"`
}

// Raw returns the value bytes of the item.
func (it Item) Raw() []byte {
	b, err := hexcodec.Decode(it.Value)
	if err != nil {
		return nil
	}
	return b
}

// Parse walks raw and returns its AD structures in order. It never fails:
// malformed input only shortens the result.
func Parse(raw []byte) []Item {
	items := []Item{}
	i := 0
	for i < len(raw) {
		length := int(raw[i])
		// The segment spans raw[i : i+length+1]; its last byte must exist.
		if length == 0 || i+length >= len(raw) {
			break
		}

		code := raw[i+1]
		value := raw[i+2 : i+1+length]

		items = append(items, Item{
			Length:    length,
			TypeCode:  code,
			TypeName:  TypeName(code),
			Value:     "0x" + hexcodec.Encode(value),
			TextValue: textValue(code, value),
		})

		i += length + 1
	}
	return items
}

func textValue(code byte, value []byte) *string {
	if code != TypeShortLocalName && code != TypeCompleteLocalName {
		return nil
	}
	text, ok := decodeText(value)
	if !ok {
		return nil
	}
	return &text
}

// decodeText interprets b as UTF-8 with surrounding whitespace trimmed.
func decodeText(b []byte) (string, bool) {
	if len(b) == 0 || !utf8.Valid(b) {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}
