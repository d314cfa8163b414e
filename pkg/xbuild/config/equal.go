// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package config

import (
	"math"
	"reflect"
	"regexp"
	"time"
)

// EqualOptions tunes DeepEqual. The zero value is strict mode.
type EqualOptions struct {
	// LooseSequences compares slices positionally up to the shorter
	// length instead of requiring equal length.
	LooseSequences bool
}

// DeepEqual implements the store's selector-distinctness relation
// (spec.md §4.A / §9): NaN == NaN, +0 == -0, recursive structural
// equality over composites, elementwise sequence comparison, instant
// equality for timestamps, and pattern+flags equality for regexes.
// URL-like values get no special case: they are compared field by
// field like any other struct, not by their normalized String() form.
//
// Cyclic structures fail closed: DeepEqual returns false rather than
// diverging once it revisits a pointer pair already on the walk's
// visited set (spec.md §9).
func DeepEqual(a, b any, opts ...EqualOptions) bool {
	var o EqualOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return deepEqual(reflect.ValueOf(a), reflect.ValueOf(b), o, map[[2]unsafePointer]bool{})
}

// unsafePointer avoids importing unsafe just to key a visited-set map;
// reflect.Value.Pointer() already returns a uintptr-compatible address
// for the pointer/map/slice kinds that can participate in a cycle.
type unsafePointer = uintptr

func deepEqual(a, b reflect.Value, o EqualOptions, visited map[[2]unsafePointer]bool) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}

	// Unwrap Value (our tagged union) and interface/pointer layers.
	if av, ok := a.Interface().(Value); ok {
		bv, ok2 := b.Interface().(Value)
		return ok2 && av.Equal(bv)
	}
	if at, ok := a.Interface().(time.Time); ok {
		bt, ok2 := b.Interface().(time.Time)
		return ok2 && at.Equal(bt)
	}
	if ar, ok := a.Interface().(*regexp.Regexp); ok {
		br, ok2 := b.Interface().(*regexp.Regexp)
		return ok2 && ar != nil && br != nil && ar.String() == br.String()
	}

	for a.Kind() == reflect.Interface || a.Kind() == reflect.Pointer {
		if a.IsNil() || b.Kind() != a.Kind() {
			break
		}
		if a.Kind() == reflect.Pointer {
			key := [2]unsafePointer{a.Pointer(), b.Pointer()}
			if visited[key] {
				// Revisiting the same pair: fail closed rather than loop.
				return false
			}
			visited[key] = true
		}
		a = a.Elem()
		b = b.Elem()
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch a.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.String:
		return a.String() == b.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		af, bf := a.Float(), b.Float()
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
		return af == bf // +0 == -0 under Go's == already
	case reflect.Slice, reflect.Array:
		if a.IsNil() != b.IsNil() {
			return false
		}
		n := a.Len()
		if !o.LooseSequences && n != b.Len() {
			return false
		}
		if o.LooseSequences && b.Len() < n {
			n = b.Len()
		}
		for i := 0; i < n; i++ {
			if !deepEqual(a.Index(i), b.Index(i), o, visited) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.IsNil() != b.IsNil() {
			return false
		}
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(iter.Key())
			if !bv.IsValid() || !deepEqual(iter.Value(), bv, o, visited) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if a.Type().Field(i).PkgPath != "" {
				continue // unexported
			}
			if !deepEqual(a.Field(i), b.Field(i), o, visited) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a.Interface(), b.Interface())
	}
}
