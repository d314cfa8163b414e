// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package build is the per-variant glue (spec.md §4.G): for each
// variant it registers one start handler that invokes the Analyzer
// and one load handler that invokes the Transformer, both reading and
// writing the variant's own Stage.
//
// Orchestration across variants is modeled the way the teacher's
// multi-stage Build.Full ran each stage to completion in turn, except
// here independent variants have no data dependency on one another,
// so they run concurrently via errgroup (spec.md §5: "Implementations
// may parallelize multiple variants' builds but must keep each
// variant's stage and snapshot writes serialized").
package build

import (
	"context"
	"fmt"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/remotex-labs/xbuild/internal/pkg/lifecycle"
	"github.com/remotex-labs/xbuild/internal/pkg/macro"
	"github.com/remotex-labs/xbuild/internal/pkg/macro/inline"
	"github.com/remotex-labs/xbuild/internal/pkg/snapshot"
	"github.com/remotex-labs/xbuild/internal/pkg/xlog"
	"github.com/remotex-labs/xbuild/pkg/util/slice"
	"github.com/remotex-labs/xbuild/pkg/xbuild/config"
	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

// Variant is a single named build the Driver runs: its esbuild entry
// points (the dependency-scan seed), its defines, and the esbuild
// options it otherwise wants.
type Variant struct {
	Name        string
	EntryPoints []string
	Defines     map[string]config.Value
	Options     api.BuildOptions

	// InlineTimeout overrides the $$inline sandbox timeout for this
	// variant only. Zero means inline.DefaultTimeout applies.
	InlineTimeout time.Duration
}

// VariantFromConfig builds a Variant from a configured VariantConfig
// (pkg/xbuild/config), threading its define map and per-variant inline
// timeout through to the Driver.
func VariantFromConfig(name string, entryPoints []string, vc config.VariantConfig, opts api.BuildOptions) Variant {
	return Variant{
		Name:          name,
		EntryPoints:   entryPoints,
		Defines:       vc.Define,
		Options:       opts,
		InlineTimeout: vc.InlineTimeout,
	}
}

// Result is one variant's outcome.
type Result struct {
	Variant      string
	BuildResult  api.BuildResult
	Diagnostics  []*diag.Diagnostic
	Replacements []macro.ReplacementRecord
	Err          error
}

// Driver wires the Analyzer and Transformer into a lifecycle Registry
// per variant and runs esbuild.
type Driver struct {
	Snapshots *snapshot.Store
}

// NewDriver returns a Driver using its own snapshot store, shared
// across all variants registered on it (spec.md §4.B: the snapshot
// store is shared infrastructure, not per-variant).
func NewDriver() *Driver {
	return &Driver{Snapshots: snapshot.New()}
}

// Run builds every variant concurrently and returns one Result per
// variant, preserving input order.
func (d *Driver) Run(ctx context.Context, variants []Variant) []Result {
	results := make([]Result, len(variants))

	var seen []string
	for _, v := range variants {
		if slice.ContainsString(seen, v.Name) {
			xlog.Warnf("variant %q registered more than once; each entry is built and gets its own result", v.Name)
		}
		seen = append(seen, v.Name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			results[i] = d.runVariant(gctx, v)
			return nil
		})
	}
	// Errors are captured per-result, not propagated through the group,
	// so one variant's failure does not cancel its siblings; Wait only
	// blocks until every goroutine has returned.
	_ = g.Wait()

	return results
}

func (d *Driver) runVariant(buildCtx context.Context, v Variant) Result {
	analyzer := macro.NewAnalyzer(d.Snapshots)
	evaluator := inline.NewEvaluator()
	if v.InlineTimeout > 0 {
		evaluator.Timeout = v.InlineTimeout
	}
	transformer := macro.NewTransformer(evaluator)

	registry := lifecycle.NewRegistry(v.Name, nil, func(path string) (string, error) {
		snap, err := d.Snapshots.GetOrTouch(path)
		if err != nil {
			return "", err
		}
		return snap.Text, nil
	})

	registry.OnStart(func(ctx lifecycle.StartContext) lifecycle.HandlerResult {
		metafile := ctx.Build.InitialOptions.EntryPoints
		deps := append([]string{}, metafile...)
		deps = append(deps, v.EntryPoints...)

		meta, warnings := analyzer.Analyze(deps, v.Defines)
		ctx.Stage.SetMetadata(meta)

		if skipped := meta.FilesWithoutMacros(deps); len(skipped) > 0 {
			xlog.Debugf("variant %q: %d/%d dependency files have no macro sites", v.Name, len(skipped), len(deps))
		}

		var result lifecycle.HandlerResult
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, w.Diagnostic)
		}
		return result
	})

	registry.OnLoad(func(ctx lifecycle.LoadContext) lifecycle.LoadResult {
		meta := ctx.Stage.Metadata()
		if meta == nil {
			meta = macro.NewMetadata()
		}

		out, err := transformer.Transform(buildCtx, ctx.Args.Path, ctx.Contents, meta, v.Defines)
		if err != nil {
			if d, ok := err.(*diag.Diagnostic); ok {
				return lifecycle.LoadResult{Errors: []*diag.Diagnostic{d}}
			}
			return lifecycle.LoadResult{Errors: []*diag.Diagnostic{diag.Wrap(diag.BundlerError, diag.SeverityFatal, diag.Location{File: ctx.Args.Path}, "transform failed", err)}}
		}

		ctx.Stage.LogReplacements(out.Replacements)

		text := out.Text
		return lifecycle.LoadResult{Contents: &text, Errors: errorDiagnostics(out.Diagnostics), Warnings: warningDiagnostics(out.Diagnostics)}
	})

	opts := v.Options
	opts.EntryPoints = v.EntryPoints
	opts.Plugins = append(opts.Plugins, registry.Create())

	xlog.Infof("building variant %q", v.Name)
	buildResult := api.Build(opts)

	return Result{
		Variant:      v.Name,
		BuildResult:  buildResult,
		Diagnostics:  append([]*diag.Diagnostic{}, registry.Stage.ReplacementInfo...),
		Replacements: append([]macro.ReplacementRecord{}, registry.Stage.Replacements...),
		Err:          buildErrToErr(v.Name, buildResult),
	}
}

func buildErrToErr(variant string, result api.BuildResult) error {
	if len(result.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("variant %s failed with %d error(s)", variant, len(result.Errors))
}

func errorDiagnostics(ds []*diag.Diagnostic) []*diag.Diagnostic {
	var out []*diag.Diagnostic
	for _, d := range ds {
		if d.Severity == diag.SeverityError || d.Severity == diag.SeverityFatal {
			out = append(out, d)
		}
	}
	return out
}

func warningDiagnostics(ds []*diag.Diagnostic) []*diag.Diagnostic {
	var out []*diag.Diagnostic
	for _, d := range ds {
		if d.Severity == diag.SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}
