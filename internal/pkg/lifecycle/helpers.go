// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package lifecycle

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

// toMessage converts a located Diagnostic into the host bundler's
// Message shape (spec.md §6: errors/warnings surfaced to the
// bundler).
func toMessage(d *diag.Diagnostic) api.Message {
	if d == nil {
		return api.Message{}
	}
	loc := &api.Location{
		File:   d.Location.File,
		Line:   d.Location.Line,
		Column: d.Location.Column,
	}
	return api.Message{
		PluginName: "xbuild-macro",
		Text:       d.Text,
		Location:   loc,
	}
}

func appendDiagnostics(result *api.OnStartResult, res HandlerResult) {
	for _, e := range res.Errors {
		result.Errors = append(result.Errors, toMessage(e))
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, toMessage(w))
	}
}

func appendEndDiagnostics(result *api.OnEndResult, res HandlerResult) {
	for _, e := range res.Errors {
		result.Errors = append(result.Errors, toMessage(e))
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, toMessage(w))
	}
}

// panicToDiagnostic wraps a recovered handler panic as a BundlerError
// diagnostic so it can be aggregated like any other handler error.
func panicToDiagnostic(variantName string, rec any) *diag.Diagnostic {
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("%v", rec)
	}
	return diag.Wrap(diag.BundlerError, diag.SeverityError,
		diag.Location{File: variantName}, "handler panicked", err)
}

// resolveResultFromMap applies the shallow-merge-by-registration-order
// result (spec.md §4.F: "Merge results by shallow object merge in
// registration order") onto an api.OnResolveResult. Recognized keys:
// path, namespace, external, pluginName.
func resolveResultFromMap(m map[string]any) api.OnResolveResult {
	var out api.OnResolveResult
	if v, ok := m["path"].(string); ok {
		out.Path = v
	}
	if v, ok := m["namespace"].(string); ok {
		out.Namespace = v
	}
	if v, ok := m["external"].(bool); ok {
		out.External = v
	}
	if v, ok := m["pluginName"].(string); ok {
		out.PluginName = v
	}
	return out
}
