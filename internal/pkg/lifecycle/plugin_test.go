// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package lifecycle

import (
	"errors"
	"testing"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

func noopContentSource(path string) (string, error) { return "content:" + path, nil }

func TestOnStartHandlersRunInRegistrationOrder(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	var order []string

	r.OnStart(func(StartContext) HandlerResult {
		order = append(order, "first")
		return HandlerResult{}
	})
	r.OnStart(func(StartContext) HandlerResult {
		order = append(order, "second")
		return HandlerResult{}
	})

	if _, err := r.runStart(api.PluginBuild{}); err != nil {
		t.Fatalf("runStart() error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestOnStartHandlerPanicDoesNotShortCircuit(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	secondRan := false

	r.OnStart(func(StartContext) HandlerResult {
		panic(errors.New("boom"))
	})
	r.OnStart(func(StartContext) HandlerResult {
		secondRan = true
		return HandlerResult{}
	})

	result, err := r.runStart(api.PluginBuild{})
	if err != nil {
		t.Fatalf("runStart() error = %v", err)
	}
	if !secondRan {
		t.Fatal("expected the second handler to still run after the first panicked")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one captured error, got %d", len(result.Errors))
	}
}

func TestStageResetsOnEachStart(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	r.OnStart(func(ctx StartContext) HandlerResult {
		ctx.Stage.LogDiagnostic(diag.New(diag.BundlerError, diag.SeverityError, diag.Location{}, "x"))
		return HandlerResult{}
	})

	if _, err := r.runStart(api.PluginBuild{}); err != nil {
		t.Fatalf("runStart() error = %v", err)
	}
	if len(r.Stage.ReplacementInfo) != 1 {
		t.Fatalf("expected 1 logged diagnostic, got %d", len(r.Stage.ReplacementInfo))
	}

	if _, err := r.runStart(api.PluginBuild{}); err != nil {
		t.Fatalf("runStart() error = %v", err)
	}
	if len(r.Stage.ReplacementInfo) != 1 {
		t.Fatalf("expected stage to reset on the second start, keeping only that start's entry, got %d entries", len(r.Stage.ReplacementInfo))
	}
}

func TestSuccessHandlersSkippedWhenEndErrored(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	successRan := false

	r.OnEnd(func(EndContext) HandlerResult {
		return HandlerResult{Errors: []*diag.Diagnostic{diag.New(diag.BundlerError, diag.SeverityError, diag.Location{}, "failed")}}
	})
	r.OnSuccess(func(EndContext) { successRan = true })

	if _, err := r.runStart(api.PluginBuild{}); err != nil {
		t.Fatalf("runStart() error = %v", err)
	}
	result, err := r.runEnd(&api.BuildResult{})
	if err != nil {
		t.Fatalf("runEnd() error = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error from runEnd, got %d", len(result.Errors))
	}
	if successRan {
		t.Fatal("success handler must not run when an end handler reported an error")
	}
}

func TestSuccessHandlersRunWhenNoEndErrors(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	successRan := false
	r.OnSuccess(func(EndContext) { successRan = true })

	if _, err := r.runStart(api.PluginBuild{}); err != nil {
		t.Fatalf("runStart() error = %v", err)
	}
	if _, err := r.runEnd(&api.BuildResult{}); err != nil {
		t.Fatalf("runEnd() error = %v", err)
	}
	if !successRan {
		t.Fatal("expected success handler to run when no end handler errored")
	}
}

func TestResolveHandlersMergeShallowInRegistrationOrder(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)

	r.OnResolve(func(ResolveContext) map[string]any {
		return map[string]any{"path": "/a", "namespace": "first"}
	})
	r.OnResolve(func(ResolveContext) map[string]any {
		return map[string]any{"namespace": "second"}
	})

	result, err := r.runResolve(api.OnResolveArgs{})
	if err != nil {
		t.Fatalf("runResolve() error = %v", err)
	}
	if result.Path != "/a" {
		t.Fatalf("Path = %q, want /a", result.Path)
	}
	if result.Namespace != "second" {
		t.Fatalf("Namespace = %q, want second (later handler overrides)", result.Namespace)
	}
}

func TestResolveWithNoHandlerResultReturnsEmpty(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	r.OnResolve(func(ResolveContext) map[string]any { return nil })

	result, err := r.runResolve(api.OnResolveArgs{})
	if err != nil {
		t.Fatalf("runResolve() error = %v", err)
	}
	if result.Path != "" {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestLoadHandlersAccumulateAndOverrideContents(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)

	r.OnLoad(func(ctx LoadContext) LoadResult {
		text := ctx.Contents + "-first"
		return LoadResult{Contents: &text}
	})
	r.OnLoad(func(ctx LoadContext) LoadResult {
		text := ctx.Contents + "-second"
		return LoadResult{Contents: &text}
	})

	result, err := r.runLoad(api.OnLoadArgs{Path: "a.ts"})
	if err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}
	if result.Contents == nil || *result.Contents != "content:a.ts-first-second" {
		t.Fatalf("Contents = %v, want content:a.ts-first-second", result.Contents)
	}
}

func TestLoadHandlerErrorIsLoggedToStage(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	r.OnLoad(func(LoadContext) LoadResult {
		return LoadResult{Errors: []*diag.Diagnostic{diag.New(diag.InlineEvaluationError, diag.SeverityError, diag.Location{}, "boom")}}
	})

	result, err := r.runLoad(api.OnLoadArgs{Path: "a.ts"})
	if err != nil {
		t.Fatalf("runLoad() error = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error in load result, got %d", len(result.Errors))
	}
	if len(r.Stage.ReplacementInfo) != 1 {
		t.Fatalf("expected the error to also land in the stage diagnostic log, got %d entries", len(r.Stage.ReplacementInfo))
	}
}

func TestClearAllRemovesEveryHandler(t *testing.T) {
	r := NewRegistry("dev", nil, noopContentSource)
	r.OnStart(func(StartContext) HandlerResult { return HandlerResult{} })
	r.OnLoad(func(LoadContext) LoadResult { return LoadResult{} })

	r.ClearAll()

	if len(r.starts) != 0 || len(r.loads) != 0 {
		t.Fatal("expected ClearAll to empty every handler category")
	}
}
