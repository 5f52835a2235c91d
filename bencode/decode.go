package bencode

import (
	"github.com/mikeolsen/go-torrent-client/goerr"
)

// Decode parses the single bencoded value at the start of b and returns it.
// It is strict about trailing data: any byte left over after the value is
// decoded is an error, per spec.md §4.1's "top-level decode ... fails if
// any trailing bytes remain".
func Decode(b []byte) (Value, error) {
	v, rest, err := decode(b)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, goerr.Malformedf("trailing data after top-level value (%d bytes)", len(rest))
	}
	return v, nil
}

// DecodeStrict behaves like Decode but additionally rejects any dictionary
// (at any nesting depth) whose keys are not already in sorted order in the
// input, per spec.md §4.1's optional strict mode.
func DecodeStrict(b []byte) (Value, error) {
	v, rest, err := decodeStrict(b)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, goerr.Malformedf("trailing data after top-level value (%d bytes)", len(rest))
	}
	return v, nil
}

func decodeStrict(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, goerr.Malformedf("unexpected EOF")
	}
	switch b[0] {
	case 'd':
		return decodeDictStrict(b)
	case 'l':
		return decodeListStrict(b)
	default:
		return decode(b)
	}
}

func decodeListStrict(b []byte) (Value, []byte, error) {
	rest := b[1:]
	var items []Value
	for {
		if len(rest) == 0 {
			return Value{}, nil, goerr.Malformedf("unterminated list")
		}
		if rest[0] == 'e' {
			return List(items), rest[1:], nil
		}
		v, r, err := decodeStrict(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items = append(items, v)
		rest = r
	}
}

func decodeDictStrict(b []byte) (Value, []byte, error) {
	rest := b[1:]
	var entries []DictEntry
	for {
		if len(rest) == 0 {
			return Value{}, nil, goerr.Malformedf("unterminated dictionary")
		}
		if rest[0] == 'e' {
			if !sortedKeys(entries) {
				return Value{}, nil, goerr.Malformedf("dictionary keys are not sorted")
			}
			return Dict(entries), rest[1:], nil
		}
		keyVal, r, err := decode(rest)
		if err != nil {
			return Value{}, nil, err
		}
		key, ok := keyVal.Bytes()
		if !ok {
			return Value{}, nil, goerr.Malformedf("dictionary key is not a byte string")
		}
		val, r2, err := decodeStrict(r)
		if err != nil {
			return Value{}, nil, err
		}
		entries = append(entries, DictEntry{Key: key, Value: val})
		rest = r2
	}
}

func sortedKeys(entries []DictEntry) bool {
	for i := 1; i < len(entries); i++ {
		if string(entries[i-1].Key) > string(entries[i].Key) {
			return false
		}
	}
	return true
}

// decode parses one bencoded value from the front of b and returns it along
// with the unconsumed suffix.
func decode(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, goerr.Malformedf("unexpected EOF")
	}
	switch {
	case b[0] >= '0' && b[0] <= '9':
		return decodeString(b)
	case b[0] == 'i':
		return decodeInt(b)
	case b[0] == 'l':
		return decodeList(b)
	case b[0] == 'd':
		return decodeDict(b)
	default:
		return Value{}, nil, goerr.Malformedf("unknown prefix byte %q", b[0])
	}
}

func decodeString(b []byte) (Value, []byte, error) {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(b) || b[i] != ':' {
		return Value{}, nil, goerr.Malformedf("malformed byte-string length prefix")
	}
	// Reject a length prefix with a leading zero other than "0" itself,
	// mirroring the integer rule; a string length is never negative so
	// there is no '-0' case to reject here.
	if i > 1 && b[0] == '0' {
		return Value{}, nil, goerr.Malformedf("byte-string length has leading zero")
	}
	length, err := parseUint(b[:i])
	if err != nil {
		return Value{}, nil, err
	}
	rest := b[i+1:]
	if length > len(rest) {
		return Value{}, nil, goerr.Malformedf("byte-string length %d exceeds remaining buffer (%d)", length, len(rest))
	}
	return String(rest[:length]), rest[length:], nil
}

func parseUint(digits []byte) (int, error) {
	n := 0
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, goerr.Malformedf("non-decimal digit %q in length prefix", d)
		}
		n = n*10 + int(d-'0')
	}
	return n, nil
}

func decodeInt(b []byte) (Value, []byte, error) {
	// b[0] == 'i'
	end := indexByte(b[1:], 'e')
	if end < 0 {
		return Value{}, nil, goerr.Malformedf("unterminated integer")
	}
	digits := b[1 : 1+end]
	rest := b[1+end+1:]
	if len(digits) == 0 {
		return Value{}, nil, goerr.Malformedf("empty integer")
	}
	neg := false
	i := 0
	if digits[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(digits) {
		return Value{}, nil, goerr.Malformedf("malformed integer %q", digits)
	}
	// Reject leading zeros: "03" is invalid, "0" is valid, "-0" is invalid.
	if digits[i] == '0' && len(digits)-i > 1 {
		return Value{}, nil, goerr.Malformedf("integer %q has a leading zero", digits)
	}
	if neg && digits[i] == '0' {
		return Value{}, nil, goerr.Malformedf("negative zero %q is not allowed", digits)
	}
	var n int64
	for _, d := range digits[i:] {
		if d < '0' || d > '9' {
			return Value{}, nil, goerr.Malformedf("non-decimal digit %q in integer", d)
		}
		n = n*10 + int64(d-'0')
	}
	if neg {
		n = -n
	}
	return Int(n), rest, nil
}

func decodeList(b []byte) (Value, []byte, error) {
	rest := b[1:] // consume 'l'
	var items []Value
	for {
		if len(rest) == 0 {
			return Value{}, nil, goerr.Malformedf("unterminated list")
		}
		if rest[0] == 'e' {
			return List(items), rest[1:], nil
		}
		v, r, err := decode(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items = append(items, v)
		rest = r
	}
}

func decodeDict(b []byte) (Value, []byte, error) {
	rest := b[1:] // consume 'd'
	var entries []DictEntry
	for {
		if len(rest) == 0 {
			return Value{}, nil, goerr.Malformedf("unterminated dictionary")
		}
		if rest[0] == 'e' {
			return Dict(entries), rest[1:], nil
		}
		keyVal, r, err := decode(rest)
		if err != nil {
			return Value{}, nil, err
		}
		key, ok := keyVal.Bytes()
		if !ok {
			return Value{}, nil, goerr.Malformedf("dictionary key is not a byte string")
		}
		val, r2, err := decode(r)
		if err != nil {
			return Value{}, nil, err
		}
		entries = append(entries, DictEntry{Key: key, Value: val})
		rest = r2
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
