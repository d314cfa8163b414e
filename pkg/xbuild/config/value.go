// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config holds the data types consumed and produced by the
// reactive configuration store: the defines tagged union, per-variant
// configuration, and the deep-equal/deep-merge primitives the store
// and the macro pipeline both depend on.
package config

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the tagged variants of Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
)

// Value is a tagged union over the JSON scalar types a define may hold.
// It decodes directly from JSON so a front end can unmarshal a defines
// block straight into a map[string]Value.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
}

func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Number(n float64) Value  { return Value{kind: KindNumber, n: n} }
func String(s string) Value   { return Value{kind: KindString, s: s} }
func Null() Value             { return Value{kind: KindNull} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) Bool() bool       { return v.b }
func (v Value) Number() float64  { return v.n }
func (v Value) Str() string      { return v.s }

// Truthy applies JavaScript truthiness: false, 0, NaN, "", null and the
// absence of a value are all falsy; everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && v.n == v.n // the == v.n excludes NaN
	case KindString:
		return v.s != ""
	default:
		return false
	}
}

// Equal implements the Value half of the store's deep-equality rules:
// NaN == NaN and +0 == -0 for numbers, exact match otherwise.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if v.n != v.n && o.n != o.n {
			return true // NaN == NaN
		}
		return v.n == o.n
	case KindString:
		return v.s == o.s
	default:
		return true // both null
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return fmt.Sprintf("%g", v.n)
	case KindString:
		return v.s
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// FromAny converts a decoded JSON scalar (bool, float64, string, nil)
// into a Value. Any other dynamic type collapses to null.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	default:
		return Null()
	}
}
