// Package bencode implements a canonical bencode decoder and encoder: the
// round-trip property encode(decode(b)) == b for any canonical input b is
// what makes info-hash computation well-defined (spec.md §4.1).
package bencode

import (
	"bytes"
	"sort"
)

// Kind tags which of the four bencode shapes a Value holds.
type Kind uint8

const (
	KindInt Kind = iota
	KindString
	KindList
	KindDict
)

// Value is a tagged bencoded value: an integer, a byte string, an ordered
// list of values, or a dictionary. Dictionaries are stored as an ordered
// slice of entries rather than a map so that a canonical input decodes and
// re-encodes byte-for-byte without needing to pre-validate key order.
type Value struct {
	kind Kind
	i    int64
	s    []byte
	list []Value
	dict []DictEntry
}

// DictEntry is one key/value pair of a dictionary Value.
type DictEntry struct {
	Key   []byte
	Value Value
}

// Int constructs an integer Value.
func Int(n int64) Value { return Value{kind: KindInt, i: n} }

// String constructs a byte-string Value. The bytes are copied.
func String(s []byte) Value {
	cp := make([]byte, len(s))
	copy(cp, s)
	return Value{kind: KindString, s: cp}
}

// List constructs a list Value.
func List(vs []Value) Value { return Value{kind: KindList, list: vs} }

// Dict constructs a dictionary Value from entries already in caller-chosen
// order; use Dict(SortEntries(entries)) to canonicalize explicitly, or rely
// on Encode to sort at encode time.
func Dict(entries []DictEntry) Value { return Value{kind: KindDict, dict: entries} }

// Kind reports which shape v holds.
func (v Value) Kind() Kind { return v.kind }

// Int64 returns the integer held by v. ok is false if v is not an integer.
func (v Value) Int64() (n int64, ok bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Bytes returns the raw bytes held by v. ok is false if v is not a string.
func (v Value) Bytes() (b []byte, ok bool) {
	if v.kind != KindString {
		return nil, false
	}
	return v.s, true
}

// ListItems returns the elements held by v. ok is false if v is not a list.
func (v Value) ListItems() (items []Value, ok bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Entries returns the dictionary entries held by v, in their stored order.
// ok is false if v is not a dictionary.
func (v Value) Entries() (entries []DictEntry, ok bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Get looks up key in a dictionary Value. ok is false if v is not a
// dictionary or the key is absent.
func (v Value) Get(key string) (val Value, ok bool) {
	if v.kind != KindDict {
		return Value{}, false
	}
	for _, e := range v.dict {
		if string(e.Key) == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// SortEntries returns a copy of entries sorted by raw key byte order, the
// canonical dictionary order required by spec.md §3.
func SortEntries(entries []DictEntry) []DictEntry {
	out := make([]DictEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return bytes.Compare(out[i].Key, out[j].Key) < 0
	})
	return out
}
