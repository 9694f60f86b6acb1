package tsbundle

import (
	"strings"

	"go.miragespace.co/tsbundle/options"
	"go.miragespace.co/tsbundle/transpile"

	"github.com/evanw/esbuild/pkg/api"
)

// TranspileErrorMarker starts the message of every TranspilationError.
const TranspileErrorMarker = "There were TypeScript errors transpiling"

type ConfigurationError = options.ConfigurationError

// TranspilationError is returned when the compiler reports diagnostics for a
// file. No output is produced for that file and the build fails.
type TranspilationError struct {
	File        string
	Diagnostics []transpile.Diagnostic
}

func (e *TranspilationError) Error() string {
	var b strings.Builder
	b.WriteString(TranspileErrorMarker)
	b.WriteString(" ")
	b.WriteString(e.File)
	b.WriteString(":")
	for _, d := range e.Diagnostics {
		b.WriteString("\n  ")
		b.WriteString(d.String())
	}
	return b.String()
}

// BuildError carries the error messages of a failed esbuild build.
type BuildError struct {
	Messages []api.Message
}

func (e *BuildError) Error() string {
	formatted := api.FormatMessages(e.Messages, api.FormatMessagesOptions{
		Kind: api.ErrorMessage,
	})
	return strings.TrimSpace(strings.Join(formatted, ""))
}

// Unwrap exposes errors returned by plugin callbacks, which esbuild keeps in
// the message detail.
func (e *BuildError) Unwrap() []error {
	var errs []error
	for _, m := range e.Messages {
		if err, ok := m.Detail.(error); ok {
			errs = append(errs, err)
		}
	}
	return errs
}
