// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package config

import "time"

// VariantConfig describes one named build variant: its defines and the
// few pipeline knobs SPEC_FULL.md adds on top of the distilled spec.
type VariantConfig struct {
	Define map[string]Value `json:"define"`

	// InlineTimeout bounds a single $$inline sandbox execution. Zero
	// means the pipeline default (2s) applies.
	InlineTimeout time.Duration `json:"inlineTimeout,omitempty"`
}

// BuildConfig is the root configuration tree. Lifecycle owns no
// defines of its own; every define lives under a variant.
type BuildConfig struct {
	Variants map[string]VariantConfig `json:"variants"`
}

// Variant looks up a variant by name, returning the zero value and
// false if it is not configured.
func (c BuildConfig) Variant(name string) (VariantConfig, bool) {
	v, ok := c.Variants[name]
	return v, ok
}

// Defined reports whether name is present and truthy in the variant's
// define map -- the $$ifdef/$$ifndef truth table input.
func (vc VariantConfig) Defined(name string) bool {
	v, ok := vc.Define[name]
	return ok && v.Truthy()
}
