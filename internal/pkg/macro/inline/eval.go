// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package inline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

// DefaultTimeout bounds a single inline evaluation when the variant
// configuration does not set InlineTimeout (SPEC_FULL.md supplement).
const DefaultTimeout = 2 * time.Second

// Evaluator runs extracted thunks to completion, spec.md §4.E.2.
type Evaluator struct {
	Timeout time.Duration
}

// NewEvaluator returns an Evaluator using DefaultTimeout.
func NewEvaluator() *Evaluator {
	return &Evaluator{Timeout: DefaultTimeout}
}

// Result is a successful evaluation's stringified module.exports,
// ready to splice into the caller's source as a literal expression.
type Result struct {
	Text string
}

// Evaluate transpiles code to a self-contained CommonJS module and
// executes it in a goja sandbox rooted at dir, with filename used for
// require() context and sandbox diagnostics (spec.md §4.E.2).
// loc is attached to any evaluation error for source-accurate
// diagnostics (spec.md §4.E.3).
func (e *Evaluator) Evaluate(ctx context.Context, code, dir, filename string, loc diag.Location) (Result, *diag.Diagnostic) {
	bundle, buildErr := transpile(code, dir, filename)
	if buildErr != nil {
		return Result{}, diag.Wrap(diag.InlineEvaluationError, diag.SeverityError, loc, "failed to transpile inline thunk", buildErr)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)

	go func() {
		sb := newSandbox(dir, filename)
		prg, err := goja.Compile(filename, bundle, false)
		if err != nil {
			errCh <- err
			return
		}
		if _, err := sb.vm.RunProgram(prg); err != nil {
			errCh <- err
			return
		}
		exported := sb.exportsValue()
		resultCh <- Result{Text: stringifyExport(sb.vm, exported)}
	}()

	select {
	case r := <-resultCh:
		return r, nil
	case err := <-errCh:
		return Result{}, diag.Wrap(diag.InlineEvaluationError, diag.SeverityError, loc, "inline thunk threw", err)
	case <-runCtx.Done():
		return Result{}, diag.Wrap(diag.InlineEvaluationError, diag.SeverityError, loc, "inline thunk timed out", runCtx.Err())
	}
}

// transpile bundles code into a single CommonJS module with esbuild,
// per spec.md §4.E.2's knobs: bundle yes, format CommonJS, platform
// node, external packages (so require() calls for real npm packages
// reach the sandbox's require shim rather than failing to resolve at
// transpile time).
func transpile(code, dir, filename string) (string, error) {
	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   code,
			ResolveDir: dir,
			Sourcefile: filepath.Base(filename),
			Loader:     api.LoaderTS,
		},
		Bundle:    true,
		Format:    api.FormatCommonJS,
		Platform:  api.PlatformNode,
		Packages:  api.PackagesExternal,
		Write:     false,
		LogLevel:  api.LogLevelSilent,
		Sourcemap: api.SourceMapInline,
	})

	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return "", fmt.Errorf("esbuild: %v", msgs)
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("esbuild produced no output for %s", filename)
	}
	return string(result.OutputFiles[0].Contents), nil
}

// stringifyExport renders module.exports as a syntactically valid
// expression literal to splice back into the source. spec.md §9 notes
// the original implementation always returned the literal string
// "undefined" on success regardless of what the sandbox produced, and
// leaves it an open question whether that was intentional; this
// implementation takes the documented spec choice and substitutes the
// actual stringified export.
func stringifyExport(vm *goja.Runtime, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}

	export := v.Export()
	switch val := export.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case bool, int64, float64:
		return fmt.Sprintf("%v", val)
	default:
		jsonGlobal := vm.Get("JSON")
		if jsonGlobal != nil {
			if obj := jsonGlobal.ToObject(vm); obj != nil {
				if stringify, ok := goja.AssertFunction(obj.Get("stringify")); ok {
					if res, err := stringify(obj, v); err == nil {
						return res.String()
					}
				}
			}
		}
		return fmt.Sprintf("%v", export)
	}
}
