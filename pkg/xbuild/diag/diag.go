// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package diag carries the located diagnostics the macro pipeline
// raises (spec.md §7): a location-bearing value distinct from a plain
// error so callers can surface file/line/column independently of the
// message text, the way the bundler's own Message type does.
package diag

import "fmt"

// Kind classifies a diagnostic per spec.md §7.
type Kind string

const (
	MacroArityError         Kind = "macro_arity_error"
	MacroNonStringDefine    Kind = "macro_non_string_define"
	MacroNamingWarning      Kind = "macro_naming_warning"
	InlineResolutionWarning Kind = "inline_resolution_warning"
	InlineEvaluationError   Kind = "inline_evaluation_error"
	UnknownMacro            Kind = "unknown_macro"
	BundlerError            Kind = "bundler_error"
)

// Severity distinguishes fatal diagnostics (abort the file's load)
// from soft ones (the call is left unrewritten or a warning emitted).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

// Location is a 1-based line, 0-based column source position.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Diagnostic is a located, classified build-time message.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Text     string
	Location Location
	Detail   error
}

func (d *Diagnostic) Error() string {
	if d.Detail != nil {
		return fmt.Sprintf("%s: %s: %v", d.Location, d.Text, d.Detail)
	}
	return fmt.Sprintf("%s: %s", d.Location, d.Text)
}

// New builds a Diagnostic at a given location.
func New(kind Kind, sev Severity, loc Location, text string, args ...any) *Diagnostic {
	return &Diagnostic{
		Kind:     kind,
		Severity: sev,
		Text:     fmt.Sprintf(text, args...),
		Location: loc,
	}
}

// Wrap attaches an underlying error as Detail.
func Wrap(kind Kind, sev Severity, loc Location, text string, detail error) *Diagnostic {
	return &Diagnostic{Kind: kind, Severity: sev, Text: text, Location: loc, Detail: detail}
}

// IsFatal reports whether d should abort the current file's load.
func IsFatal(d *Diagnostic) bool {
	return d != nil && d.Severity == SeverityFatal
}
