// Package options resolves the compiler options used for every file of a
// build from tsconfig.json, user overrides and the settings the plugin needs.
package options

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.miragespace.co/tsbundle/transpile"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
)

type SourceMapMode int

const (
	SourceMapNone SourceMapMode = iota
	SourceMapExternal
	SourceMapInline
)

func (m SourceMapMode) String() string {
	switch m {
	case SourceMapExternal:
		return "external"
	case SourceMapInline:
		return "inline"
	default:
		return "none"
	}
}

// ModuleFormat is the module kind every file is transpiled to, so the
// bundler sees import and export statements.
const ModuleFormat = "ES2015"

// ReservedKeys are plugin options that must not reach the compiler.
var ReservedKeys = []string{"include", "exclude", "typescript", "tslib", "tsconfig"}

// ignoredKeys make no sense for in-memory single file transpilation.
var ignoredKeys = []string{
	"declaration",
	"declarationDir",
	"declarationMap",
	"emitDeclarationOnly",
	"composite",
	"incremental",
	"tsBuildInfoFile",
	"noEmit",
	"out",
	"outFile",
	"outDir",
}

var ErrReservedOption = errors.New("option is reserved for the plugin")

// ConfigurationError reports compiler options that cannot be used.
type ConfigurationError struct {
	Option string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("Couldn't process compiler options: %v", e.Err)
	}
	return fmt.Sprintf("Couldn't process compiler options: %q: %v", e.Option, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Converter turns raw JSON style options into the compiler's own form.
type Converter interface {
	ConvertCompilerOptionsFromJSON(ctx context.Context, raw map[string]any, basePath string) (map[string]any, []transpile.Diagnostic, error)
}

type Input struct {
	// Dir is where tsconfig.json is looked up, usually the entry module's directory.
	Dir string
	// Tsconfig is an explicit path to the project configuration.
	Tsconfig        string
	DisableTsconfig bool
	Overrides       map[string]any
}

type Resolved struct {
	CompilerOptions map[string]any
	SourceMap       SourceMapMode
	PreserveJSX     bool
	// ConfigFile is the tsconfig that was loaded, if any.
	ConfigFile string
}

// ValidateOverrides fails on the first reserved key, in sorted order.
func ValidateOverrides(overrides map[string]any) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, reserved := range ReservedKeys {
			if k == reserved {
				return &ConfigurationError{Option: k, Err: ErrReservedOption}
			}
		}
	}
	return nil
}

// Resolve merges tsconfig compilerOptions with in.Overrides, applies the
// plugin's own settings and validates the result with conv when non-nil.
func Resolve(ctx context.Context, in Input, conv Converter) (*Resolved, error) {
	if err := ValidateOverrides(in.Overrides); err != nil {
		return nil, err
	}

	r := &Resolved{}
	k := koanf.New(keyDelim)

	if !in.DisableTsconfig {
		path := in.Tsconfig
		if path == "" {
			var err error
			if path, err = Discover(in.Dir); err != nil {
				return nil, err
			}
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(in.Dir, path)
		}

		if path != "" {
			fromFile, err := LoadTsconfig(path)
			if err != nil {
				return nil, err
			}
			if err := k.Load(confmap.Provider(fromFile, ""), nil); err != nil {
				return nil, err
			}
			r.ConfigFile = path
		}
	}

	if len(in.Overrides) > 0 {
		if err := overlay(k, in.Overrides); err != nil {
			return nil, err
		}
	}

	opts := k.Raw()
	for _, key := range ignoredKeys {
		delete(opts, key)
	}

	inline := truthy(opts["inlineSourceMap"])
	external := truthy(opts["sourceMap"])
	switch {
	case inline:
		r.SourceMap = SourceMapInline
	case external:
		r.SourceMap = SourceMapExternal
	}
	delete(opts, "inlineSourceMap")
	opts["sourceMap"] = r.SourceMap != SourceMapNone

	opts["module"] = ModuleFormat

	if jsx, ok := opts["jsx"].(string); ok && strings.EqualFold(jsx, "preserve") {
		r.PreserveJSX = true
	}

	if conv != nil {
		converted, diags, err := conv.ConvertCompilerOptionsFromJSON(ctx, opts, in.Dir)
		if err != nil {
			return nil, fmt.Errorf("error converting compiler options: %w", err)
		}
		if len(diags) > 0 {
			msgs := make([]string, 0, len(diags))
			for _, d := range diags {
				msgs = append(msgs, d.Message)
			}
			return nil, &ConfigurationError{Err: errors.New(strings.Join(msgs, "; "))}
		}
		opts = converted
	}

	r.CompilerOptions = opts
	return r, nil
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
