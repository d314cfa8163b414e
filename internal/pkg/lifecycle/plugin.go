// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package lifecycle

import (
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/remotex-labs/xbuild/internal/pkg/xlog"
	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

// BaseContext is shared by reference across every hook invoked for one
// build (spec.md §4.F: "Create a base context {argv, variantName,
// stage}. This object is shared by reference across all hooks in the
// current build").
type BaseContext struct {
	Argv        []string
	VariantName string
	Stage       *Stage
}

// HandlerResult aggregates the errors/warnings a single handler
// invocation contributed.
type HandlerResult struct {
	Errors   []*diag.Diagnostic
	Warnings []*diag.Diagnostic
}

type (
	StartContext struct {
		BaseContext
		Build api.PluginBuild
	}
	StartHandler func(StartContext) HandlerResult

	EndContext struct {
		BaseContext
		BuildResult *api.BuildResult
		Duration    time.Duration
	}
	EndHandler     func(EndContext) HandlerResult
	SuccessHandler func(EndContext)

	ResolveContext struct {
		BaseContext
		Args api.OnResolveArgs
	}
	ResolveHandler func(ResolveContext) map[string]any

	LoadContext struct {
		BaseContext
		Contents string
		Loader   api.Loader
		Args     api.OnLoadArgs
	}
	LoadResult struct {
		Contents *string
		Loader   *api.Loader
		Errors   []*diag.Diagnostic
		Warnings []*diag.Diagnostic
	}
	LoadHandler func(LoadContext) LoadResult
)

type named[H any] struct {
	name    string
	handler H
}

// Registry is the reusable hook registry (spec.md §4.F): five named
// categories, each invoked sequentially in registration order, never
// concurrently (the ordering guarantee load-bearing for Stage safety).
type Registry struct {
	Argv        []string
	VariantName string
	Stage       *Stage

	starts    []named[StartHandler]
	ends      []named[EndHandler]
	successes []named[SuccessHandler]
	resolves  []named[ResolveHandler]
	loads     []named[LoadHandler]

	contentSource func(path string) (string, error)
}

// NewRegistry returns a Registry for one variant. contentSource
// implements the snapshot-first, else-disk content lookup spec.md
// §4.F's load execution describes.
func NewRegistry(variantName string, argv []string, contentSource func(path string) (string, error)) *Registry {
	return &Registry{
		Argv:          argv,
		VariantName:   variantName,
		Stage:         NewStage(),
		contentSource: contentSource,
	}
}

func (r *Registry) OnStart(h StartHandler, name ...string) {
	r.starts = append(r.starts, named[StartHandler]{name: firstOr(name, r.VariantName), handler: h})
}

func (r *Registry) OnEnd(h EndHandler, name ...string) {
	r.ends = append(r.ends, named[EndHandler]{name: firstOr(name, r.VariantName), handler: h})
}

func (r *Registry) OnSuccess(h SuccessHandler, name ...string) {
	r.successes = append(r.successes, named[SuccessHandler]{name: firstOr(name, r.VariantName), handler: h})
}

func (r *Registry) OnResolve(h ResolveHandler, name ...string) {
	r.resolves = append(r.resolves, named[ResolveHandler]{name: firstOr(name, r.VariantName), handler: h})
}

func (r *Registry) OnLoad(h LoadHandler, name ...string) {
	r.loads = append(r.loads, named[LoadHandler]{name: firstOr(name, r.VariantName), handler: h})
}

// ClearAll removes every registered handler in every category.
func (r *Registry) ClearAll() {
	r.starts = nil
	r.ends = nil
	r.successes = nil
	r.resolves = nil
	r.loads = nil
}

func firstOr(names []string, fallback string) string {
	if len(names) > 0 && names[0] != "" {
		return names[0]
	}
	return fallback
}

func (r *Registry) base() BaseContext {
	return BaseContext{Argv: r.Argv, VariantName: r.VariantName, Stage: r.Stage}
}

func (r *Registry) runStart(build api.PluginBuild) (api.OnStartResult, error) {
	r.Stage.Reset()
	xlog.WithField("build_id", r.Stage.BuildID).Infof("variant %q: build started", r.VariantName)

	var result api.OnStartResult
	ctx := StartContext{BaseContext: r.base(), Build: build}

	for _, h := range r.starts {
		res := invokeStart(h.handler, ctx)
		appendDiagnostics(&result, res)
	}
	return result, nil
}

// invokeStart captures handler panics as a single-element error list
// (spec.md §4.F: "Handler throws are captured as single-element error
// lists and do not short-circuit subsequent handlers").
func invokeStart(h StartHandler, ctx StartContext) (result HandlerResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = HandlerResult{Errors: []*diag.Diagnostic{panicToDiagnostic(ctx.VariantName, rec)}}
		}
	}()
	return h(ctx)
}

func (r *Registry) runEnd(buildResult *api.BuildResult) (api.OnEndResult, error) {
	duration := r.Stage.Duration()
	ctx := EndContext{BaseContext: r.base(), BuildResult: buildResult, Duration: duration}

	var result api.OnEndResult
	for _, h := range r.ends {
		res := invokeEnd(h.handler, ctx)
		appendEndDiagnostics(&result, res)
	}

	if len(result.Errors) == 0 {
		for _, h := range r.successes {
			invokeSuccess(h.handler, ctx, &result)
		}
	}
	return result, nil
}

func invokeEnd(h EndHandler, ctx EndContext) (result HandlerResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = HandlerResult{Errors: []*diag.Diagnostic{panicToDiagnostic(ctx.VariantName, rec)}}
		}
	}()
	return h(ctx)
}

func invokeSuccess(h SuccessHandler, ctx EndContext, result *api.OnEndResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result.Errors = append(result.Errors, toMessage(panicToDiagnostic(ctx.VariantName, rec)))
		}
	}()
	h(ctx)
}

func (r *Registry) runResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	ctx := ResolveContext{BaseContext: r.base(), Args: args}

	merged := map[string]any{}
	any_ := false
	for _, h := range r.resolves {
		if partial := h.handler(ctx); partial != nil {
			any_ = true
			for k, v := range partial {
				merged[k] = v
			}
		}
	}
	if !any_ {
		return api.OnResolveResult{}, nil
	}
	return resolveResultFromMap(merged), nil
}

func (r *Registry) runLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	contents, err := r.contentSource(args.Path)
	if err != nil {
		contents = ""
	}
	loader := api.LoaderDefault

	ctx := LoadContext{BaseContext: r.base(), Contents: contents, Loader: loader, Args: args}

	var out api.OnLoadResult
	for _, h := range r.loads {
		res := invokeLoad(h.handler, ctx)
		if res.Contents != nil {
			ctx.Contents = *res.Contents
		}
		if res.Loader != nil {
			ctx.Loader = *res.Loader
		}
		for _, e := range res.Errors {
			out.Errors = append(out.Errors, toMessage(e))
			r.Stage.LogDiagnostic(e)
		}
		for _, w := range res.Warnings {
			out.Warnings = append(out.Warnings, toMessage(w))
			r.Stage.LogDiagnostic(w)
		}
	}

	c := ctx.Contents
	out.Contents = &c
	out.Loader = ctx.Loader
	return out, nil
}

func invokeLoad(h LoadHandler, ctx LoadContext) (result LoadResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = LoadResult{Errors: []*diag.Diagnostic{panicToDiagnostic(ctx.VariantName, rec)}}
		}
	}()
	return h(ctx)
}

// Create packages the registry into an esbuild plugin (spec.md §4.F:
// "create() → Plugin — packaging into a host-plugin shape").
func (r *Registry) Create() api.Plugin {
	return api.Plugin{
		Name: "xbuild-macro-" + r.VariantName,
		Setup: func(build api.PluginBuild) {
			build.InitialOptions.Metafile = true

			if len(r.starts) > 0 {
				build.OnStart(func() (api.OnStartResult, error) {
					return r.runStart(build)
				})
			}
			if len(r.ends) > 0 || len(r.successes) > 0 {
				build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
					return r.runEnd(result)
				})
			}
			if len(r.resolves) > 0 {
				build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return r.runResolve(args)
				})
			}
			if len(r.loads) > 0 {
				build.OnLoad(api.OnLoadOptions{Filter: ".*"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					return r.runLoad(args)
				})
			}
		},
	}
}
