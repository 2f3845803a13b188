package repository

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"
)

// transient fields that must never reach the durable store
const transientAuthedKey = "authed"

// Sanitize deep-clones v into a JSON-safe value: big integers become plain
// numbers, times become epoch milliseconds, set-like string maps become
// sorted arrays, non-finite floats become 0 and the transient authed field
// is stripped. Cyclic references are detected through an identity-tracking
// visited set and dropped instead of recursing forever.
func Sanitize(v any) any {
	out, _ := sanitizeValue(reflect.ValueOf(v), map[uintptr]struct{}{})
	return out
}

// sanitizeValue returns the cloned value and whether it should be kept at
// all; a false second return means the value was cyclic or unserializable
// and the parent must drop it.
func sanitizeValue(v reflect.Value, seen map[uintptr]struct{}) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}

	switch concrete := v.Interface().(type) {
	case time.Time:
		return concrete.UnixMilli(), true
	case *time.Time:
		if concrete == nil {
			return nil, true
		}
		return concrete.UnixMilli(), true
	case big.Int:
		return bigToNumber(&concrete), true
	case *big.Int:
		if concrete == nil {
			return nil, true
		}
		return bigToNumber(concrete), true
	case map[string]struct{}:
		return setToSorted(concrete), true
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, true
		}
		if v.Kind() == reflect.Pointer {
			ptr := v.Pointer()
			if _, ok := seen[ptr]; ok {
				return nil, false
			}
			seen[ptr] = struct{}{}
			defer delete(seen, ptr)
		}
		return sanitizeValue(v.Elem(), seen)

	case reflect.Map:
		ptr := v.Pointer()
		if _, ok := seen[ptr]; ok {
			return nil, false
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)

		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			if key == transientAuthedKey {
				continue
			}
			val, keep := sanitizeValue(iter.Value(), seen)
			if !keep {
				continue
			}
			out[key] = val
		}
		return out, true

	case reflect.Slice:
		if v.IsNil() {
			return nil, true
		}
		ptr := v.Pointer()
		if _, ok := seen[ptr]; ok {
			return nil, false
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		return sanitizeSlice(v, seen), true

	case reflect.Array:
		return sanitizeSlice(v, seen), true

	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			val, keep := sanitizeValue(v.Field(i), seen)
			if !keep {
				continue
			}
			out[field.Name] = val
		}
		return out, true

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0.0, true
		}
		return f, true

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil, false

	default:
		return v.Interface(), true
	}
}

func sanitizeSlice(v reflect.Value, seen map[uintptr]struct{}) []any {
	out := make([]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		val, keep := sanitizeValue(v.Index(i), seen)
		if !keep {
			continue
		}
		out = append(out, val)
	}
	return out
}

func bigToNumber(b *big.Int) any {
	if b.IsInt64() {
		return b.Int64()
	}
	f, _ := new(big.Float).SetInt(b).Float64()
	return f
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}
