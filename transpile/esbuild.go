package transpile

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ESBuild is a Compiler backed by esbuild's transform API. It strips types
// without type checking, like transpileModule, but never lowers below ES2015.
type ESBuild struct{}

var _ Compiler = (*ESBuild)(nil)

func NewESBuild() *ESBuild {
	return &ESBuild{}
}

// es3 and es5 are clamped, esbuild cannot lower let, const or classes.
// Targets newer than esbuild's own list have nothing left to lower.
var esbuildTargets = map[string]api.Target{
	"es3":    api.ES2015,
	"es5":    api.ES2015,
	"es6":    api.ES2015,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ESNext,
	"es2024": api.ESNext,
	"es2025": api.ESNext,
	"esnext": api.ESNext,
}

var esbuildFormats = map[string]api.Format{
	"none":     api.FormatDefault,
	"commonjs": api.FormatCommonJS,
	"es6":      api.FormatESModule,
	"es2015":   api.FormatESModule,
	"es2020":   api.FormatESModule,
	"es2022":   api.FormatESModule,
	"esnext":   api.FormatESModule,
	"node16":   api.FormatESModule,
	"nodenext": api.FormatESModule,
}

var esbuildJSX = map[string]struct{}{
	"preserve":     {},
	"react":        {},
	"react-jsx":    {},
	"react-jsxdev": {},
	"react-native": {},
}

// options esbuild reads from a tsconfig passed as TsconfigRaw
var esbuildTsconfigKeys = []string{
	"experimentalDecorators",
	"useDefineForClassFields",
	"importsNotUsedAsValues",
	"preserveValueImports",
	"verbatimModuleSyntax",
	"jsxFactory",
	"jsxFragmentFactory",
	"jsxImportSource",
}

func (e *ESBuild) ConvertCompilerOptionsFromJSON(ctx context.Context, raw map[string]any, basePath string) (map[string]any, []Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	out := make(map[string]any, len(raw))
	var diags []Diagnostic

	invalid := func(option string, allowed map[string]struct{}) {
		names := make([]string, 0, len(allowed))
		for k := range allowed {
			names = append(names, "'"+k+"'")
		}
		sort.Strings(names)
		diags = append(diags, Diagnostic{
			Category: CategoryError,
			Code:     6046,
			Message:  fmt.Sprintf("Argument for '--%s' option must be: %s.", option, strings.Join(names, ", ")),
		})
	}

	for key, value := range raw {
		switch key {
		case "target", "module", "jsx":
			s, ok := value.(string)
			if !ok {
				diags = append(diags, Diagnostic{
					Category: CategoryError,
					Code:     5024,
					Message:  fmt.Sprintf("Compiler option '%s' requires a value of type string.", key),
				})
				continue
			}
			s = strings.ToLower(s)

			var allowed map[string]struct{}
			switch key {
			case "target":
				allowed = keys(esbuildTargets)
			case "module":
				allowed = keys(esbuildFormats)
			default:
				allowed = esbuildJSX
			}
			if _, ok := allowed[s]; !ok {
				invalid(key, allowed)
				continue
			}
			out[key] = s
		default:
			out[key] = value
		}
	}

	return out, diags, nil
}

func keys[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func (e *ESBuild) TranspileModule(ctx context.Context, fileName, source string, options map[string]any) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := api.TransformOptions{
		Sourcefile: fileName,
		Loader:     api.LoaderTS,
		Target:     api.ES2015,
		Format:     api.FormatESModule,
	}

	if strings.EqualFold(filepath.Ext(fileName), ".tsx") {
		opts.Loader = api.LoaderTSX
	}
	if s, ok := options["target"].(string); ok {
		opts.Target = esbuildTargets[s]
	}
	if s, ok := options["module"].(string); ok {
		opts.Format = esbuildFormats[s]
	}
	switch options["jsx"] {
	case "preserve":
		opts.JSX = api.JSXPreserve
	case "react-jsx", "react-native":
		opts.JSX = api.JSXAutomatic
	case "react-jsxdev":
		opts.JSX = api.JSXAutomatic
		opts.JSXDev = true
	}
	if b, ok := options["sourceMap"].(bool); ok && b {
		opts.Sourcemap = api.SourceMapExternal
		if b, ok := options["inlineSources"].(bool); ok && b {
			opts.SourcesContent = api.SourcesContentInclude
		} else {
			opts.SourcesContent = api.SourcesContentExclude
		}
	}

	tsconfig := map[string]any{}
	for _, key := range esbuildTsconfigKeys {
		if v, ok := options[key]; ok {
			tsconfig[key] = v
		}
	}
	if len(tsconfig) > 0 {
		b, err := json.Marshal(map[string]any{"compilerOptions": tsconfig})
		if err != nil {
			return nil, err
		}
		opts.TsconfigRaw = string(b)
	}

	res := api.Transform(source, opts)

	result := &Result{
		OutputText:    string(res.Code),
		SourceMapText: string(res.Map),
	}
	for _, msg := range res.Errors {
		d := Diagnostic{
			Category: CategoryError,
			Message:  msg.Text,
			File:     fileName,
		}
		if msg.Location != nil {
			d.Line = msg.Location.Line
			d.Column = msg.Location.Column + 1
		}
		result.Diagnostics = append(result.Diagnostics, d)
	}

	return result, nil
}
