// Package transpile defines the compiler capability the bundler plugin runs
// every TypeScript file through, and the implementations of it.
package transpile

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoTypescriptSource = errors.New("typescript compiler source is empty")
	ErrHostStopped        = errors.New("typescript host has been stopped")
)

// Category mirrors the TypeScript DiagnosticCategory enum.
type Category int

const (
	CategoryWarning Category = iota
	CategoryError
	CategorySuggestion
	CategoryMessage
)

func (c Category) String() string {
	switch c {
	case CategoryWarning:
		return "warning"
	case CategoryError:
		return "error"
	case CategorySuggestion:
		return "suggestion"
	default:
		return "message"
	}
}

type Diagnostic struct {
	Category Category `json:"category"`
	Code     int      `json:"code"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	// Line and Column are 1 based, 0 when unknown.
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		if d.Line > 0 {
			fmt.Fprintf(&b, "(%d,%d)", d.Line, d.Column)
		}
		b.WriteString(": ")
	}
	b.WriteString(d.Category.String())
	if d.Code != 0 {
		fmt.Fprintf(&b, " TS%d", d.Code)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Result is the output of transpiling a single file.
type Result struct {
	OutputText    string
	Diagnostics   []Diagnostic
	SourceMapText string
}

// Compiler is the capability set the plugin needs from a TypeScript
// compiler. Any implementation, including test stand-ins, can be supplied.
type Compiler interface {
	// TranspileModule transpiles one file in isolation with options previously
	// returned by ConvertCompilerOptionsFromJSON.
	TranspileModule(ctx context.Context, fileName, source string, options map[string]any) (*Result, error)
	// ConvertCompilerOptionsFromJSON validates tsconfig style options. Invalid
	// options are reported as diagnostics, not as an error.
	ConvertCompilerOptionsFromJSON(ctx context.Context, raw map[string]any, basePath string) (map[string]any, []Diagnostic, error)
}

// Versioned is implemented by compilers that know their own version.
type Versioned interface {
	Version() string
}
