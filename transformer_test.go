package tsbundle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"go.miragespace.co/tsbundle/helpers"
	"go.miragespace.co/tsbundle/options"
	"go.miragespace.co/tsbundle/sourcemap"
	"go.miragespace.co/tsbundle/transpile"

	consumer "github.com/go-sourcemap/sourcemap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubCompiler struct {
	calls     atomic.Int32
	version   string
	transpile func(fileName, source string, options map[string]any) (*transpile.Result, error)
}

var _ transpile.Compiler = (*stubCompiler)(nil)

func (s *stubCompiler) TranspileModule(ctx context.Context, fileName, source string, options map[string]any) (*transpile.Result, error) {
	s.calls.Add(1)
	return s.transpile(fileName, source, options)
}

func (s *stubCompiler) ConvertCompilerOptionsFromJSON(ctx context.Context, raw map[string]any, basePath string) (map[string]any, []transpile.Diagnostic, error) {
	return raw, nil, nil
}

func (s *stubCompiler) Version() string {
	return s.version
}

const assignHelper = `var __assign = (this && this.__assign) || function () {
    return Object.assign.apply(Object, arguments);
};
`

// helperOutput imitates tsc output for a module using __assign, with a map
// that attributes the helper to the synthetic helpers source.
func helperOutput(fileName, source string, options map[string]any) (*transpile.Result, error) {
	name := strings.TrimSuffix(fileName[strings.LastIndexAny(fileName, "/\\")+1:], ".ts")
	code := assignHelper +
		fmt.Sprintf("export var %s = __assign({}, { name: %q });\n", name, name) +
		fmt.Sprintf("//# sourceMappingURL=%s.js.map", name)

	res := &transpile.Result{OutputText: code}
	if b, _ := options["sourceMap"].(bool); b {
		m := &sourcemap.Map{
			Version: 3,
			File:    name + ".js",
			Sources: []string{fileName, helpers.SyntheticID},
			Names:   []string{},
		}
		m.SetLines([][]sourcemap.Segment{
			{{Fields: 4, Source: 1, SourceLine: 0}},
			{{GeneratedColumn: 4, Fields: 4, Source: 1, SourceLine: 1}},
			{{Fields: 4, Source: 1, SourceLine: 2}},
			{{Fields: 4, Source: 0, SourceLine: 0}, {GeneratedColumn: 11, Fields: 4, Source: 0, SourceLine: 0, SourceColumn: 13}},
			nil,
		})
		raw, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		res.SourceMapText = string(raw)
	}
	return res, nil
}

func newTestTransformer(t *testing.T, c transpile.Compiler, reg prometheus.Registerer) *Transformer {
	tr, err := NewTransformer(TransformerConfig{
		Logger:     zaptest.NewLogger(t),
		Compiler:   c,
		Registerer: reg,
	})
	require.NoError(t, err)
	return tr
}

func newTestBuild(t *testing.T, tr *Transformer, overrides map[string]any) *Build {
	b, err := tr.Resolve(context.Background(), options.Input{
		Dir:             t.TempDir(),
		DisableTsconfig: true,
		Overrides:       overrides,
	})
	require.NoError(t, err)
	return b
}

func TestTransformDedupesHelpersAndMaps(t *testing.T) {
	as := require.New(t)
	reg := prometheus.NewRegistry()
	tr := newTestTransformer(t, &stubCompiler{transpile: helperOutput}, reg)
	b := newTestBuild(t, tr, map[string]any{"sourceMap": true})
	as.Equal(options.SourceMapExternal, b.Options.SourceMap)

	first, err := tr.Transform(context.Background(), b, "/src/a.ts", "")
	as.NoError(err)
	second, err := tr.Transform(context.Background(), b, "/src/b.ts", "")
	as.NoError(err)

	bundle := first.Code + second.Code
	as.NotContains(bundle, "var __assign =")
	as.Equal(2, strings.Count(bundle, helpers.ImportStatement("__assign")))
	as.Equal(2, strings.Count(bundle, "__assign({}"))
	as.NotContains(bundle, "sourceMappingURL")

	for _, res := range []*Result{first, second} {
		as.NotNil(res.Map)
		as.NotContains(string(res.Map), "typescript-helpers")
	}

	// line 1 is the helper import, the module code follows on line 2
	smap, err := consumer.Parse("", second.Map)
	as.NoError(err)
	_, _, _, _, ok := smap.Source(1, 0)
	as.False(ok)
	source, _, line, column, ok := smap.Source(2, 11)
	as.True(ok)
	as.Equal("/src/b.ts", source)
	as.Equal(1, line)
	as.Equal(13, column)

	stats := b.Stats()
	as.Equal(int64(2), stats.Files)
	as.Equal(1, stats.Helpers)
	as.Equal(int64(2), stats.HelpersReplaced)

	mod, ok := b.Helpers.Module("__assign")
	as.True(ok)
	as.Equal(assignHelper+"export { __assign };\n", mod)

	as.Equal(float64(2), testutil.ToFloat64(tr.metrics.transpiled))
	as.Equal(float64(2), testutil.ToFloat64(tr.metrics.helpersReplaced))
}

func TestTransformInlineSourceMap(t *testing.T) {
	as := require.New(t)
	tr := newTestTransformer(t, &stubCompiler{transpile: helperOutput}, nil)
	b := newTestBuild(t, tr, map[string]any{"sourceMap": true, "inlineSourceMap": true})

	res, err := tr.Transform(context.Background(), b, "a.ts", "")
	as.NoError(err)
	as.NotNil(res.Map)
	as.True(sourcemap.HasDataURL(res.Code))
	as.Equal(1, strings.Count(res.Code, "sourceMappingURL"))
}

func TestTransformWithoutSourceMap(t *testing.T) {
	as := require.New(t)
	stub := &stubCompiler{transpile: func(fileName, source string, opts map[string]any) (*transpile.Result, error) {
		as.Equal(false, opts["sourceMap"])
		return helperOutput(fileName, source, opts)
	}}
	tr := newTestTransformer(t, stub, nil)
	b := newTestBuild(t, tr, map[string]any{"sourceMap": false, "inlineSourceMap": false})

	res, err := tr.Transform(context.Background(), b, "a.ts", "")
	as.NoError(err)
	as.Nil(res.Map)
	as.NotContains(res.Code, "sourceMappingURL")
}

func TestTransformDiagnosticsFail(t *testing.T) {
	as := require.New(t)
	reg := prometheus.NewRegistry()
	stub := &stubCompiler{transpile: func(fileName, source string, opts map[string]any) (*transpile.Result, error) {
		return &transpile.Result{
			OutputText: "var x;",
			Diagnostics: []transpile.Diagnostic{
				{Category: transpile.CategoryError, Code: 2304, Message: "Cannot find name 'Missing'.", File: fileName, Line: 1, Column: 8},
				{Category: transpile.CategoryError, Code: 1005, Message: "';' expected.", File: fileName, Line: 2, Column: 1},
			},
		}, nil
	}}
	tr := newTestTransformer(t, stub, reg)
	b := newTestBuild(t, tr, nil)

	res, err := tr.Transform(context.Background(), b, "bad.ts", "let x: Missing")
	as.Nil(res)

	var tErr *TranspilationError
	as.True(errors.As(err, &tErr))
	as.Len(tErr.Diagnostics, 2)
	as.Contains(err.Error(), TranspileErrorMarker)
	as.Contains(err.Error(), "Cannot find name 'Missing'.")
	as.Contains(err.Error(), "';' expected.")

	as.Equal(int64(1), b.Stats().Failed)
	as.Equal(float64(1), testutil.ToFloat64(tr.metrics.failures.WithLabelValues("diagnostics")))
}

func TestTransformCompilerErrorPropagates(t *testing.T) {
	as := require.New(t)
	crash := errors.New("compiler crashed")
	stub := &stubCompiler{transpile: func(string, string, map[string]any) (*transpile.Result, error) {
		return nil, crash
	}}
	tr := newTestTransformer(t, stub, nil)
	b := newTestBuild(t, tr, nil)

	_, err := tr.Transform(context.Background(), b, "a.ts", "")
	as.ErrorIs(err, crash)

	var tErr *TranspilationError
	as.False(errors.As(err, &tErr))
}

func TestTransformTslibSourceFiltered(t *testing.T) {
	as := require.New(t)
	stub := &stubCompiler{transpile: func(fileName, source string, opts map[string]any) (*transpile.Result, error) {
		m := &sourcemap.Map{Version: 3, Sources: []string{"/deps/tslib.es6.js", fileName}}
		m.SetLines([][]sourcemap.Segment{
			{{Fields: 4, Source: 0}},
			{{Fields: 4, Source: 1}},
		})
		raw, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		return &transpile.Result{OutputText: "a;\nb;\n", SourceMapText: string(raw)}, nil
	}}

	tr, err := NewTransformer(TransformerConfig{
		Logger:   zaptest.NewLogger(t),
		Compiler: stub,
		Tslib:    "/deps/../deps/tslib.es6.js",
	})
	as.NoError(err)
	b := newTestBuild(t, tr, map[string]any{"sourceMap": true})

	res, err := tr.Transform(context.Background(), b, "/src/a.ts", "")
	as.NoError(err)

	m, err := sourcemap.Parse(res.Map)
	as.NoError(err)
	as.Equal([]string{"/src/a.ts"}, m.Sources)
}

func TestTransformerRequiresCompiler(t *testing.T) {
	_, err := NewTransformer(TransformerConfig{})
	require.Error(t, err)
}

func TestDuplicateMetricsRegistration(t *testing.T) {
	as := require.New(t)
	reg := prometheus.NewRegistry()

	newTestTransformer(t, &stubCompiler{}, reg)
	_, err := NewTransformer(TransformerConfig{Compiler: &stubCompiler{}, Registerer: reg})
	as.Error(err)
}
