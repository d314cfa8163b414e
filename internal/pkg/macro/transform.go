// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package macro

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	macroast "github.com/remotex-labs/xbuild/internal/pkg/macro/ast"
	"github.com/remotex-labs/xbuild/internal/pkg/macro/inline"
	"github.com/remotex-labs/xbuild/pkg/xbuild/config"
	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

var macroNames = map[string]Kind{
	"$$ifdef":  Ifdef,
	"$$ifndef": Ifndef,
	"$$inline": Inline,
}

// TransformResult is the outcome of one file's transform pass.
type TransformResult struct {
	Text         string
	Changed      bool
	Diagnostics  []*diag.Diagnostic
	Replacements []ReplacementRecord
}

// Transformer implements spec.md §4.D: AST walk + position-ordered
// text substitution.
type Transformer struct {
	evaluator *inline.Evaluator
}

// NewTransformer returns a Transformer that delegates $$inline sites
// to evaluator.
func NewTransformer(evaluator *inline.Evaluator) *Transformer {
	return &Transformer{evaluator: evaluator}
}

// Transform rewrites text for path, consulting meta for the
// enabled/disabled classification the Analyzer already computed, and
// defines for ifdef/ifndef truth evaluation.
func (t *Transformer) Transform(ctx context.Context, path, text string, meta *Metadata, defines map[string]config.Value) (TransformResult, error) {
	if !meta.HasMacros(path) && len(meta.DisabledMacroNames) == 0 {
		return TransformResult{Text: text}, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	lang := tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	if err := parser.SetLanguage(lang); err != nil {
		return TransformResult{}, diag.Wrap(diag.BundlerError, diag.SeverityFatal,
			diag.Location{File: path}, "failed to configure TypeScript parser", err)
	}

	source := []byte(text)
	tree := parser.Parse(source, nil)
	defer tree.Close()

	rootNode := tree.RootNode()
	root := macroast.Wrap(&rootNode)

	w := &walkState{
		path:    path,
		source:  source,
		meta:    meta,
		defines: defines,
		t:       t,
		ctx:     ctx,
	}

	macroast.Walk(root, w.visit)

	if w.fatal != nil {
		return TransformResult{}, w.fatal
	}

	if conflict := w.detectOverlap(); conflict != nil {
		return TransformResult{}, conflict
	}

	applied, changed := applyReplacements(text, w.replacements)
	return TransformResult{Text: applied, Changed: changed, Diagnostics: w.diagnostics, Replacements: w.records}, nil
}

type walkState struct {
	path    string
	source  []byte
	meta    *Metadata
	defines map[string]config.Value
	t       *Transformer
	ctx     context.Context

	replacements []Replacement
	records      []ReplacementRecord
	diagnostics  []*diag.Diagnostic
	fatal        *diag.Diagnostic

	// handled remembers byte ranges already covered by a replacement so
	// the disabled-reference pass (which revisits identifiers nested
	// inside an already-rewritten region) does not double-rewrite them.
	handled []span
}

type span struct{ start, end int }

func (w *walkState) isHandled(start, end int) bool {
	for _, s := range w.handled {
		if start >= s.start && end <= s.end {
			return true
		}
	}
	return false
}

// addReplacement records both the text splice and its queryable
// ReplacementRecord (SPEC_FULL.md "Stage diagnostic log retention").
// site is a Kind's String() form, or "reference" for a disabled-name
// collapse that is not itself a directive invocation.
func (w *walkState) addReplacement(start, end int, text, site, outcome string) {
	w.replacements = append(w.replacements, Replacement{Start: start, End: end, Text: text})
	w.handled = append(w.handled, span{start, end})
	w.records = append(w.records, ReplacementRecord{
		File: w.path, Site: site, Start: start, End: end, Outcome: outcome,
	})
}

// detectOverlap is the replacement-conflict check SPEC_FULL.md's
// "Replacement conflict diagnostics" supplement requires: recognition
// is constructed so each AST node contributes at most one replacement
// and macro forms never nest with themselves, so in practice this
// never fires -- it exists to turn a recognizer bug into a located,
// descriptive BundlerError instead of corrupting output by silently
// picking the outermost span.
func (w *walkState) detectOverlap() *diag.Diagnostic {
	if len(w.replacements) < 2 {
		return nil
	}
	sorted := make([]Replacement, len(w.replacements))
	copy(sorted, w.replacements)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Start < prev.End {
			return diag.New(diag.BundlerError, diag.SeverityFatal, diag.Location{File: w.path},
				"overlapping macro replacements at [%d,%d) and [%d,%d)", prev.Start, prev.End, cur.Start, cur.End)
		}
	}
	return nil
}

// visit is the single dispatch point the iterative walker calls per
// node, switching on the tagged Kind enum per spec.md §9.
func (w *walkState) visit(n macroast.Node) bool {
	if w.fatal != nil {
		return false
	}

	switch n.Tag {
	case macroast.KindLexicalDeclaration:
		if w.recognizeVariableStatement(n) {
			return false
		}
	case macroast.KindExpressionStatement:
		if w.recognizeExpressionStatement(n) {
			return false
		}
	case macroast.KindCallExpression:
		if w.recognizeNestedCall(n) {
			return false
		}
	case macroast.KindIdentifier:
		w.recognizeDisabledIdentifier(n)
	}

	return true
}

// callInfo describes a parsed `name(args...)` call expression.
type callInfo struct {
	node     macroast.Node
	name     string
	async    bool
	args     []macroast.Node
	outerArg macroast.Node // populated for the macro(args)(outerArgs) IIFE form
	hasOuter bool
}

// parseCall inspects a call_expression node for a direct macro
// invocation, unwrapping the `as` type-assertion and IIFE forms per
// spec.md §4.D.1.
func (w *walkState) parseCall(n macroast.Node) (callInfo, bool) {
	if n.Tag != macroast.KindCallExpression {
		return callInfo{}, false
	}

	fn, ok := n.FieldChild("function")
	if !ok {
		return callInfo{}, false
	}

	// IIFE form: macro(args)(outerArgs) -- the callee of the outer call
	// is itself a call expression.
	if fn.Tag == macroast.KindCallExpression {
		inner, ok := w.parseCall(fn)
		if !ok {
			return callInfo{}, false
		}
		args, _ := n.FieldChild("arguments")
		inner.hasOuter = true
		inner.outerArg = args
		inner.node = n
		return inner, true
	}

	if fn.Tag != macroast.KindIdentifier {
		return callInfo{}, false
	}
	name := fn.Text(w.source)
	if _, ok := macroNames[name]; !ok {
		return callInfo{}, false
	}

	argsNode, _ := n.FieldChild("arguments")
	var args []macroast.Node
	for i := 0; i < argsNode.NamedChildCount(); i++ {
		if c, ok := argsNode.NamedChild(i); ok {
			args = append(args, c)
		}
	}

	return callInfo{node: n, name: name, args: args}, true
}

// unwrapInitializer strips an `as` type-assertion wrapper, per spec.md
// §4.D.1's priority order item 3.
func unwrapInitializer(n macroast.Node) macroast.Node {
	if n.Tag == macroast.KindAsExpression {
		if inner, ok := n.NamedChild(0); ok {
			return inner
		}
	}
	return n
}

// recognizeVariableStatement implements spec.md §4.D.1.
func (w *walkState) recognizeVariableStatement(stmt macroast.Node) bool {
	hasExport := strings.HasPrefix(strings.TrimSpace(stmt.Text(w.source)), "export") ||
		exportedAncestor(stmt)

	// An exported declaration is replaced together with its `export`
	// keyword, since the synthesized text carries its own export prefix.
	target := stmt
	if p, ok := stmt.Parent(); ok && p.Tag == macroast.KindExportStatement {
		target = p
	}

	handledAny := false
	for i := 0; i < stmt.NamedChildCount(); i++ {
		decl, ok := stmt.NamedChild(i)
		if !ok || decl.Tag != macroast.KindVariableDeclarator {
			continue
		}
		nameNode, ok := decl.FieldChild("name")
		if !ok {
			continue
		}
		valueNode, ok := decl.FieldChild("value")
		if !ok {
			continue
		}
		valueNode = unwrapInitializer(valueNode)

		call, ok := w.parseCall(valueNode)
		if !ok {
			continue
		}

		kind := macroNames[call.name]
		varName := nameNode.Text(w.source)

		if !w.validateArity(call, kind) {
			return true // fatal already recorded; stop descending
		}

		switch {
		case kind == Inline:
			w.astInlineVariable(target, varName, call, hasExport)
		case call.hasOuter:
			prefix := exportPrefix(hasExport) + "const " + varName + " = "
			// The arguments node's text already includes its parentheses.
			suffix := textOf(call.outerArg, w.source)
			w.astDefineCallExpression(target.StartByte(), target.EndByte(), call, kind, prefix, suffix)
		default:
			w.astDefineVariable(target, varName, call, kind, hasExport)
		}
		handledAny = true
	}
	return handledAny
}

// recognizeExpressionStatement implements spec.md §4.D.2 for the
// top-level expression-statement case.
func (w *walkState) recognizeExpressionStatement(stmt macroast.Node) bool {
	expr, ok := stmt.NamedChild(0)
	if !ok {
		return false
	}
	call, ok := w.parseCall(expr)
	if !ok {
		return false
	}
	kind := macroNames[call.name]
	if !w.validateArity(call, kind) {
		return true
	}

	if kind == Inline {
		w.astInlineCallExpression(stmt.StartByte(), stmt.EndByte(), call)
	} else {
		w.astDefineCallExpression(stmt.StartByte(), stmt.EndByte(), call, kind, "", "();")
	}
	return true
}

// recognizeNestedCall handles a call expression that is not the whole
// of its enclosing statement (spec.md §4.D.2, "Nested call
// expressions").
func (w *walkState) recognizeNestedCall(n macroast.Node) bool {
	if w.isHandled(n.StartByte(), n.EndByte()) {
		return true
	}
	if parent, ok := n.Parent(); ok {
		if parent.Tag == macroast.KindExpressionStatement || parent.Tag == macroast.KindVariableDeclarator {
			// A macro call in this position was already rewritten by the
			// statement-level recognizers above, which prune their
			// subtree; keep descending into anything else.
			return false
		}
	}

	call, ok := w.parseCall(n)
	if !ok {
		return false
	}
	kind := macroNames[call.name]
	if !w.validateArity(call, kind) {
		return true
	}

	if kind == Inline {
		w.astInlineCallExpression(n.StartByte(), n.EndByte(), call)
	} else {
		w.astDefineCallExpression(n.StartByte(), n.EndByte(), call, kind, "", "()")
	}
	return true
}

// recognizeDisabledIdentifier implements spec.md §4.D.6.
func (w *walkState) recognizeDisabledIdentifier(n macroast.Node) {
	if len(w.meta.DisabledMacroNames) == 0 {
		return
	}
	name := n.Text(w.source)
	if !w.meta.Disabled(name) {
		return
	}
	if w.isHandled(n.StartByte(), n.EndByte()) {
		return
	}

	parent, hasParent := n.Parent()
	if hasParent {
		if parent.Tag == macroast.KindCallExpression {
			if fn, ok := parent.FieldChild("function"); ok && fn.StartByte() == n.StartByte() {
				// Handled as a call; replace the whole call with undefined.
				w.addReplacement(parent.StartByte(), parent.EndByte(), "undefined", "reference", OutcomeDisabledReference)
				return
			}
		}
		if parent.Tag == macroast.KindImportSpecifier || parent.Tag == macroast.KindExportSpecifier {
			return
		}
		parentText := parent.Text(w.source)
		for macroName := range macroNames {
			if strings.Contains(parentText, macroName) {
				return
			}
		}
	}

	w.addReplacement(n.StartByte(), n.EndByte(), "undefined", "reference", OutcomeDisabledReference)
}

func (w *walkState) validateArity(call callInfo, kind Kind) bool {
	want := 2
	if kind == Inline {
		want = 1
	}
	if len(call.args) == want {
		return true
	}
	loc := w.locationOf(call.node.StartByte())
	w.fatal = diag.New(diag.MacroArityError, diag.SeverityFatal, loc,
		"%s expects %d argument(s), got %d", call.name, want, len(call.args))
	return false
}

// astDefineVariable implements spec.md §4.D.3.
func (w *walkState) astDefineVariable(stmt macroast.Node, varName string, call callInfo, kind Kind, hasExport bool) {
	defineName, ok := stringLiteralValue(call.args[0], w.source)
	if !ok {
		w.diagnostics = append(w.diagnostics, diag.New(diag.MacroNonStringDefine, diag.SeverityWarning,
			w.locationOf(call.args[0].StartByte()), "%s: first argument must be a string literal", call.name))
		return
	}

	fired := truthTableFires(kind, w.defines, defineName)
	if !fired {
		w.addReplacement(stmt.StartByte(), stmt.EndByte(),
			exportPrefix(hasExport)+"const "+varName+" = undefined;", kind.String(), OutcomeDisabled)
		return
	}

	callback := call.args[1]
	async := nodeIsAsync(callback, w.source)
	asyncPrefix := ""
	if async {
		asyncPrefix = "async "
	}

	var body string
	switch callback.Tag {
	case macroast.KindArrowFunction, macroast.KindFunctionExpression:
		params, retType, exprBody, hasBlock := splitFunctionLike(callback, w.source)
		if hasBlock {
			body = fmt.Sprintf("%s%sfunction %s(%s)%s %s", asyncPrefix, exportPrefix(hasExport), varName, params, retType, exprBody)
		} else {
			body = fmt.Sprintf("%s%sfunction %s(%s)%s { return %s; }", asyncPrefix, exportPrefix(hasExport), varName, params, retType, exprBody)
		}
	default:
		body = fmt.Sprintf("%sconst %s = %s;", exportPrefix(hasExport), varName, textOf(callback, w.source))
	}

	w.addReplacement(stmt.StartByte(), stmt.EndByte(), body, kind.String(), OutcomeEnabled)
}

// astInlineVariable implements spec.md §4.D.4.
func (w *walkState) astInlineVariable(stmt macroast.Node, varName string, call callInfo, hasExport bool) {
	varKind := variableKindOf(stmt, w.source)
	result, warn := w.evaluateInline(call.args[0])
	if warn != nil {
		w.diagnostics = append(w.diagnostics, warn)
		return
	}
	w.addReplacement(stmt.StartByte(), stmt.EndByte(),
		fmt.Sprintf("%s%s %s = %s;", exportPrefix(hasExport), varKind, varName, result), Inline.String(), OutcomeInlined)
}

// astDefineCallExpression implements spec.md §4.D.5.
func (w *walkState) astDefineCallExpression(start, end int, call callInfo, kind Kind, prefix, suffix string) {
	defineName, ok := stringLiteralValue(call.args[0], w.source)
	if !ok {
		return
	}
	if !truthTableFires(kind, w.defines, defineName) {
		w.addReplacement(start, end, "", kind.String(), OutcomeDisabled)
		return
	}

	callback := call.args[1]
	async := nodeIsAsync(callback, w.source)
	asyncPrefix := ""
	if async {
		asyncPrefix = "async "
	}

	var iife string
	switch callback.Tag {
	case macroast.KindArrowFunction, macroast.KindFunctionExpression:
		iife = fmt.Sprintf("%s%s(%s)%s", asyncPrefix, prefix, textOf(callback, w.source), suffix)
	default:
		iife = fmt.Sprintf("%s(() => { return %s; })%s", prefix, textOf(callback, w.source), suffix)
	}
	w.addReplacement(start, end, iife, kind.String(), OutcomeEnabled)
}

// astInlineCallExpression covers the expression-statement/nested-call
// dispatch of $$inline (spec.md §4.D.2).
func (w *walkState) astInlineCallExpression(start, end int, call callInfo) {
	result, warn := w.evaluateInline(call.args[0])
	if warn != nil {
		w.diagnostics = append(w.diagnostics, warn)
		w.addReplacement(start, end, "undefined", Inline.String(), OutcomeInlineFailed)
		return
	}
	w.addReplacement(start, end, result, Inline.String(), OutcomeInlined)
}

func (w *walkState) evaluateInline(callback macroast.Node) (string, *diag.Diagnostic) {
	extraction := inline.Extract(callback, w.source)
	if extraction.Warning != "" {
		return "", diag.New(diag.InlineResolutionWarning, diag.SeverityWarning,
			w.locationOf(callback.StartByte()), "%s", extraction.Warning)
	}

	res, derr := w.t.evaluator.Evaluate(w.ctx, extraction.Code, dirOf(w.path), w.path, w.locationOf(callback.StartByte()))
	if derr != nil {
		return "", derr
	}
	return res.Text, nil
}

func (w *walkState) locationOf(byteOffset int) diag.Location {
	line, col := lineColumn(w.source, byteOffset)
	return diag.Location{File: w.path, Line: line, Column: col}
}

// lineColumn implements spec.md §4.C's "Line/column policy": 1-based
// line, 0-based column (byte offset from line start).
func lineColumn(source []byte, offset int) (line, col int) {
	if offset > len(source) {
		offset = len(source)
	}
	line = 1 + strings.Count(string(source[:offset]), "\n")
	lastNL := strings.LastIndexByte(string(source[:offset]), '\n')
	col = offset - (lastNL + 1)
	return
}

func dirOf(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return "."
}

func exportPrefix(hasExport bool) string {
	if hasExport {
		return "export "
	}
	return ""
}

func exportedAncestor(n macroast.Node) bool {
	p, ok := n.Parent()
	return ok && p.Tag == macroast.KindExportStatement
}

func textOf(n macroast.Node, source []byte) string {
	return n.Text(source)
}

func nodeIsAsync(n macroast.Node, source []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(n.Text(source)), "async")
}

// splitFunctionLike returns a best-effort (params, returnTypeAnnotation,
// bodyText, hasBlockBody) tuple for an arrow/function expression,
// deriving pieces from the textual form rather than a deeper grammar
// walk since the callback's internal structure is opaque to the
// macro rewrite (only its outer shape matters).
func splitFunctionLike(n macroast.Node, source []byte) (params, retType, body string, hasBlock bool) {
	text := strings.TrimSpace(n.Text(source))
	text = strings.TrimPrefix(text, "async")
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "function") {
		open := strings.IndexByte(text, '(')
		close := matchParen(text, open)
		params = text[open+1 : close]
		rest := strings.TrimSpace(text[close+1:])
		if strings.HasPrefix(rest, ":") {
			bodyOpen := strings.IndexByte(rest, '{')
			retType = ": " + strings.TrimSpace(rest[1:bodyOpen])
			body = rest[bodyOpen:]
		} else {
			body = rest
		}
		return params, retType, body, true
	}

	// Arrow function.
	arrowIdx := strings.Index(text, "=>")
	head := strings.TrimSpace(text[:arrowIdx])
	if strings.HasPrefix(head, "(") {
		close := matchParen(head, 0)
		params = head[1:close]
		rest := strings.TrimSpace(head[close+1:])
		if strings.HasPrefix(rest, ":") {
			retType = ": " + strings.TrimSpace(rest[1:])
		}
	} else {
		params = head
	}
	rest := strings.TrimSpace(text[arrowIdx+2:])
	if strings.HasPrefix(rest, "{") {
		return params, retType, rest, true
	}
	return params, retType, rest, false
}

func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s) - 1
}

func variableKindOf(stmt macroast.Node, source []byte) string {
	text := stmt.Text(source)
	text = strings.TrimPrefix(strings.TrimSpace(text), "export")
	text = strings.TrimSpace(text)
	for _, kw := range []string{"const", "let", "var"} {
		if strings.HasPrefix(text, kw) {
			return kw
		}
	}
	return "const"
}

func stringLiteralValue(n macroast.Node, source []byte) (string, bool) {
	if n.Tag != macroast.KindString {
		return "", false
	}
	text := strings.TrimSpace(n.Text(source))
	text = strings.Trim(text, `"'`)
	return text, true
}

// truthTableFires implements spec.md §8's arity/truth table.
func truthTableFires(kind Kind, defines map[string]config.Value, name string) bool {
	v, present := defines[name]
	truthy := present && v.Truthy()
	switch kind {
	case Ifdef:
		return truthy
	case Ifndef:
		return !present || !truthy
	default:
		return false
	}
}

// applyReplacements sorts descending by Start and splices the text,
// per spec.md §4.D.7.
func applyReplacements(text string, repls []Replacement) (string, bool) {
	if len(repls) == 0 {
		return text, false
	}
	sorted := make([]Replacement, len(repls))
	copy(sorted, repls)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	out := text
	for _, r := range sorted {
		out = out[:r.Start] + r.Text + out[r.End:]
	}
	return out, true
}
