// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package ast wraps the tree-sitter TypeScript grammar behind a small,
// tagged-enumeration node kind (spec.md §9: "Dynamic AST dispatch
// should be expressed as a tagged enumeration of node kinds with
// matching dispatch, not open polymorphism") so the transformer
// package switches on a closed Go enum instead of matching raw
// grammar-rule name strings at every call site.
package ast

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Kind is a closed enumeration over the grammar node kinds the
// transformer recognizes. Anything else collapses to KindOther.
type Kind int

const (
	KindOther Kind = iota
	KindProgram
	KindLexicalDeclaration // const/let/var statement
	KindVariableDeclarator
	KindExpressionStatement
	KindCallExpression
	KindIdentifier
	KindArrowFunction
	KindFunctionExpression
	KindAsExpression
	KindImportSpecifier
	KindExportSpecifier
	KindExportStatement
	KindString
)

var kindByGrammarName = map[string]Kind{
	"program":               KindProgram,
	"lexical_declaration":   KindLexicalDeclaration,
	"variable_declaration":  KindLexicalDeclaration,
	"variable_declarator":   KindVariableDeclarator,
	"expression_statement":  KindExpressionStatement,
	"call_expression":       KindCallExpression,
	"identifier":            KindIdentifier,
	"property_identifier":   KindIdentifier,
	"arrow_function":        KindArrowFunction,
	"function_expression":   KindFunctionExpression,
	"function":              KindFunctionExpression,
	"as_expression":         KindAsExpression,
	"import_specifier":      KindImportSpecifier,
	"export_specifier":      KindExportSpecifier,
	"export_statement":      KindExportStatement,
	"string":                KindString,
	"string_fragment":       KindString,
}

func classify(grammarName string) Kind {
	if k, ok := kindByGrammarName[grammarName]; ok {
		return k
	}
	return KindOther
}

// Node pairs a raw tree-sitter node with its classified Kind and byte
// range so transformer code switches on Tag rather than comparing
// grammar strings. The byte range is captured at Wrap time (rather
// than always read through raw) so a Node can also be constructed
// synthetically -- e.g. in tests -- without a live tree-sitter tree.
type Node struct {
	raw        *tree_sitter.Node
	Tag        Kind
	start, end int
}

// Wrap classifies a raw tree-sitter node.
func Wrap(n *tree_sitter.Node) Node {
	if n == nil {
		return Node{}
	}
	return Node{raw: n, Tag: classify(n.Kind()), start: int(n.StartByte()), end: int(n.EndByte())}
}

// NewSynthetic builds a Node with no backing tree-sitter node, for
// callers (and tests) that only need Tag/Text over a known byte
// range. Child/Parent/FieldChild are unavailable on a synthetic node.
func NewSynthetic(tag Kind, start, end int) Node {
	return Node{Tag: tag, start: start, end: end}
}

// Valid reports whether the node wraps an actual tree-sitter node.
func (n Node) Valid() bool { return n.raw != nil }

// Raw exposes the underlying tree-sitter node for callers that need
// grammar-specific field access the Kind enum does not model.
func (n Node) Raw() *tree_sitter.Node { return n.raw }

// GrammarName returns the raw grammar rule name, for diagnostics only
// -- transformer dispatch must never switch on this, only on Tag.
func (n Node) GrammarName() string {
	if n.raw == nil {
		return ""
	}
	return n.raw.Kind()
}

func (n Node) StartByte() int { return n.start }

func (n Node) EndByte() int { return n.end }

// Text slices source by this node's byte range.
func (n Node) Text(source []byte) string {
	if n.start < 0 || n.end > len(source) || n.start > n.end {
		return ""
	}
	return string(source[n.start:n.end])
}

func (n Node) ChildCount() int {
	if n.raw == nil {
		return 0
	}
	return int(n.raw.ChildCount())
}

func (n Node) Child(i int) (Node, bool) {
	if n.raw == nil {
		return Node{}, false
	}
	c := n.raw.Child(uint(i))
	if c == nil {
		return Node{}, false
	}
	return Wrap(c), true
}

func (n Node) NamedChild(i int) (Node, bool) {
	if n.raw == nil {
		return Node{}, false
	}
	c := n.raw.NamedChild(uint(i))
	if c == nil {
		return Node{}, false
	}
	return Wrap(c), true
}

func (n Node) NamedChildCount() int {
	if n.raw == nil {
		return 0
	}
	return int(n.raw.NamedChildCount())
}

// FieldChild fetches a named field, e.g. "function"/"arguments" on a
// call_expression, or "name"/"value" on a variable_declarator.
func (n Node) FieldChild(field string) (Node, bool) {
	if n.raw == nil {
		return Node{}, false
	}
	c := n.raw.ChildByFieldName(field)
	if c == nil {
		return Node{}, false
	}
	return Wrap(c), true
}

func (n Node) Parent() (Node, bool) {
	if n.raw == nil {
		return Node{}, false
	}
	p := n.raw.Parent()
	if p == nil {
		return Node{}, false
	}
	return Wrap(p), true
}
