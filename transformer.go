package tsbundle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.miragespace.co/tsbundle/helpers"
	"go.miragespace.co/tsbundle/options"
	"go.miragespace.co/tsbundle/sourcemap"
	"go.miragespace.co/tsbundle/transpile"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Result is the transformed code of one file. Map is nil when source maps
// are disabled.
type Result struct {
	Code string
	Map  []byte
}

type TransformerConfig struct {
	Logger   *zap.Logger
	Compiler transpile.Compiler
	// Tslib is the path imports of "tslib" resolve to, it is never listed as
	// a source in the emitted maps.
	Tslib      string
	Registerer prometheus.Registerer
}

// Transformer runs single files through the compiler and post-processes the
// output for bundling.
type Transformer struct {
	logger   *zap.Logger
	compiler transpile.Compiler
	tslib    string
	metrics  *metrics
}

func NewTransformer(cfg TransformerConfig) (*Transformer, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Compiler == nil {
		return nil, fmt.Errorf("compiler cannot be nil")
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("error registering metrics: %w", err)
	}

	tslib := cfg.Tslib
	if tslib != "" {
		tslib = filepath.Clean(tslib)
	}

	return &Transformer{
		logger:   cfg.Logger,
		compiler: cfg.Compiler,
		tslib:    tslib,
		metrics:  m,
	}, nil
}

// Resolve resolves the compiler options for a build and returns a fresh
// build context with them.
func (t *Transformer) Resolve(ctx context.Context, in options.Input) (*Build, error) {
	resolved, err := options.Resolve(ctx, in, t.compiler)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("Compiler options resolved",
		zap.String("tsconfig", resolved.ConfigFile),
		zap.Stringer("sourceMap", resolved.SourceMap),
		zap.Int("options", len(resolved.CompilerOptions)),
	)

	return NewBuild(resolved, helpers.NewRegistry()), nil
}

// Transform transpiles one file. Diagnostics fail the file with a
// TranspilationError, compiler failures are returned wrapped.
func (t *Transformer) Transform(ctx context.Context, b *Build, fileName, source string) (*Result, error) {
	start := time.Now()

	res, err := t.compiler.TranspileModule(ctx, fileName, source, b.Options.CompilerOptions)
	t.metrics.observe(start)
	if err != nil {
		b.failed.Add(1)
		t.metrics.fail("compiler")
		return nil, fmt.Errorf("error transpiling %s: %w", fileName, err)
	}

	if len(res.Diagnostics) > 0 {
		b.failed.Add(1)
		t.metrics.fail("diagnostics")
		return nil, &TranspilationError{
			File:        fileName,
			Diagnostics: res.Diagnostics,
		}
	}

	code := sourcemap.StripURLComment(res.OutputText)
	outcome := b.Helpers.Dedupe(fileName, code)

	var m []byte
	if b.Options.SourceMap != options.SourceMapNone && res.SourceMapText != "" {
		m, err = t.adjustMap(res.SourceMapText, outcome)
		if err != nil {
			return nil, fmt.Errorf("error adjusting source map of %s: %w", fileName, err)
		}
	}

	code = outcome.Code
	if b.Options.SourceMap == options.SourceMapInline && m != nil {
		code = sourcemap.AppendDataURL(code, m)
	}

	b.files.Add(1)
	b.replaced.Add(int64(len(outcome.Replaced)))
	t.metrics.transpiled.Inc()
	t.metrics.helpersReplaced.Add(float64(len(outcome.Replaced)))

	if len(outcome.Replaced) > 0 {
		t.logger.Debug("Helpers moved to shared modules",
			zap.String("file", fileName),
			zap.Strings("helpers", outcome.Replaced),
		)
	}

	return &Result{
		Code: code,
		Map:  m,
	}, nil
}

func (t *Transformer) adjustMap(text string, outcome helpers.Outcome) ([]byte, error) {
	sm, err := sourcemap.Parse([]byte(text))
	if err != nil {
		return nil, err
	}
	if err := sm.ClearLines(outcome.ReplacedLines); err != nil {
		return nil, err
	}
	if err := sm.RemoveLines(outcome.RemovedLines); err != nil {
		return nil, err
	}
	if _, err := sm.DropSources(t.synthetic); err != nil {
		return nil, err
	}
	return sm.Bytes()
}

// synthetic reports whether a map source is helper code rather than user
// source.
func (t *Transformer) synthetic(source string) bool {
	if strings.HasPrefix(source, helpers.SyntheticID) {
		return true
	}
	return t.tslib != "" && filepath.Clean(source) == t.tslib
}
