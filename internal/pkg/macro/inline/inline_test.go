// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package inline

import (
	"testing"

	"github.com/dop251/goja"

	macroast "github.com/remotex-labs/xbuild/internal/pkg/macro/ast"
)

func TestExtractArrowFunctionWrapsModuleExports(t *testing.T) {
	source := []byte(`const PI = $$inline(() => 3.14);`)
	// The callback spans "() => 3.14" inside the $$inline(...) call.
	start := 20
	end := start + len("() => 3.14")

	callback := fakeNode(macroast.KindArrowFunction, start, end)
	got := Extract(callback, source)

	want := "module.exports = (() => 3.14)();"
	if got.Code != want {
		t.Fatalf("Code = %q, want %q", got.Code, want)
	}
	if got.Warning != "" {
		t.Fatalf("unexpected warning %q", got.Warning)
	}
}

func TestExtractUnresolvedIdentifierWarns(t *testing.T) {
	source := []byte(`const v = $$inline(missingFn);`)
	start := 19
	end := start + len("missingFn")

	callback := fakeNode(macroast.KindIdentifier, start, end)
	got := Extract(callback, source)

	if got.Code != "" {
		t.Fatalf("expected no code for an unresolved identifier, got %q", got.Code)
	}
	if got.Warning == "" {
		t.Fatal("expected a resolution warning")
	}
}

func TestExtractResolvesTopLevelArrowBinding(t *testing.T) {
	source := []byte("const compute = () => 7;\nconst v = $$inline(compute);")
	idx := len("const compute = () => 7;\nconst v = $$inline(")
	callback := fakeNode(macroast.KindIdentifier, idx, idx+len("compute"))

	got := Extract(callback, source)
	if got.Warning != "" {
		t.Fatalf("expected the top-level binding to resolve, got warning %q", got.Warning)
	}
	if got.Code == "" {
		t.Fatal("expected extracted code for a resolved binding")
	}
}

func TestStringifyExportPrimitives(t *testing.T) {
	vm := goja.New()

	cases := []struct {
		name string
		js   string
		want string
	}{
		{"number", "(3.14)", "3.14"},
		{"string", `("hi")`, `"hi"`},
		{"bool", "(true)", "true"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			v, err := vm.RunString(tt.js)
			if err != nil {
				t.Fatalf("RunString() error = %v", err)
			}
			got := stringifyExport(vm, v)
			if got != tt.want {
				t.Fatalf("stringifyExport() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringifyExportUndefined(t *testing.T) {
	if got := stringifyExport(goja.New(), goja.Undefined()); got != "undefined" {
		t.Fatalf("stringifyExport(undefined) = %q, want undefined", got)
	}
}

// fakeNode builds a macroast.Node whose Text() returns the given
// source slice without needing a real tree-sitter parse -- Extract
// only calls Text()/Tag on the node, so a minimal stand-in exercises
// the same code paths as a true parse would.
func fakeNode(tag macroast.Kind, start, end int) macroast.Node {
	return macroast.NewSynthetic(tag, start, end)
}
