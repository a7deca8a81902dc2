package utils

import (
	"fmt"
	"maps"
	"slices"
)

type Record = map[string]any

// CloneRecord returns a shallow copy of rec.
func CloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	maps.Copy(out, rec)
	return out
}

// SortedKeys returns the keys of rec in lexical order.
func SortedKeys(rec Record) []string {
	return slices.Sorted(maps.Keys(rec))
}

// ToString renders a record value as text. Byte slices are taken as is.
func ToString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
