package tsbundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"go.miragespace.co/tsbundle/helpers"
	"go.miragespace.co/tsbundle/options"
	"go.miragespace.co/tsbundle/sourcemap"
	"go.miragespace.co/tsbundle/transpile"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

const PluginName = "typescript"

var (
	DefaultInclude = []string{`\.tsx?$`}
	DefaultExclude = []string{`\.d\.ts$`}
)

type Config struct {
	// Include and Exclude are Go regular expressions matched against the
	// absolute path of every loaded file. Declaration files are excluded in
	// addition to Exclude.
	Include []string
	Exclude []string
	// Tsconfig is the path of the project configuration. When empty,
	// the nearest tsconfig.json at or above the first entry point is used if
	// it exists.
	Tsconfig        string
	DisableTsconfig bool
	// Typescript replaces the compiler, transpile.Default is used when nil.
	Typescript transpile.Compiler
	// Tslib is the file imports of "tslib" resolve to.
	Tslib string
	// CompilerOptions override the ones in tsconfig.json.
	CompilerOptions map[string]any
	Logger          *zap.Logger
	Registerer      prometheus.Registerer
}

type plugin struct {
	logger      *zap.Logger
	cfg         Config
	include     []*regexp.Regexp
	exclude     []*regexp.Regexp
	transformer *Transformer
	versionOnce sync.Once
}

// session is the state of one esbuild build (or build context) using the
// plugin. Rebuilds of the same context start a new Build.
type session struct {
	*plugin
	dir     string
	current atomic.Pointer[Build]
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPlugin returns an esbuild plugin that transpiles TypeScript files with
// the configured compiler. Invalid configuration fails here, before any
// build is started.
func NewPlugin(cfg Config) (api.Plugin, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if err := options.ValidateOverrides(cfg.CompilerOptions); err != nil {
		return api.Plugin{}, err
	}

	include, exclude, err := filters(cfg)
	if err != nil {
		return api.Plugin{}, err
	}

	compiler := cfg.Typescript
	if compiler == nil {
		if compiler, err = transpile.Default(cfg.Logger, 1); err != nil {
			return api.Plugin{}, err
		}
	}

	transformer, err := NewTransformer(TransformerConfig{
		Logger:     cfg.Logger,
		Compiler:   compiler,
		Tslib:      cfg.Tslib,
		Registerer: cfg.Registerer,
	})
	if err != nil {
		return api.Plugin{}, err
	}

	p := &plugin{
		logger:      cfg.Logger.With(zap.String("plugin", PluginName)),
		cfg:         cfg,
		include:     include,
		exclude:     exclude,
		transformer: transformer,
	}

	return api.Plugin{
		Name:  PluginName,
		Setup: p.setup,
	}, nil
}

// filters compiles the include and exclude patterns. Declaration files are
// always excluded.
func filters(cfg Config) (include, exclude []*regexp.Regexp, err error) {
	patterns := cfg.Include
	if len(patterns) == 0 {
		patterns = DefaultInclude
	}
	if include, err = compileFilters(patterns); err != nil {
		return nil, nil, &ConfigurationError{Option: "include", Err: err}
	}

	patterns = append(append([]string{}, cfg.Exclude...), DefaultExclude...)
	if exclude, err = compileFilters(patterns); err != nil {
		return nil, nil, &ConfigurationError{Option: "exclude", Err: err}
	}

	return include, exclude, nil
}

func compileFilters(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, s := range patterns {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func (p *plugin) setup(build api.PluginBuild) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		plugin: p,
		dir:    entryDir(build.InitialOptions),
		ctx:    ctx,
		cancel: cancel,
	}

	build.OnStart(func() (api.OnStartResult, error) {
		return api.OnStartResult{}, s.start()
	})

	build.OnResolve(api.OnResolveOptions{Filter: helpers.ImportFilter}, s.resolveHelper)
	build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: helpers.Namespace}, s.loadHelper)

	build.OnResolve(api.OnResolveOptions{Filter: `\.d\.ts$`}, s.resolveDeclaration)
	build.OnResolve(api.OnResolveOptions{Filter: `^\.\.?(/|$)`}, s.resolveRelative)
	if p.cfg.Tslib != "" {
		build.OnResolve(api.OnResolveOptions{Filter: `^tslib$`}, s.resolveTslib)
	}

	for _, re := range p.include {
		build.OnLoad(api.OnLoadOptions{Filter: re.String(), Namespace: "file"}, s.load)
	}

	build.OnEnd(s.end)
	build.OnDispose(s.cancel)
}

// entryDir is where tsconfig.json is looked up.
func entryDir(opts *api.BuildOptions) string {
	wd := opts.AbsWorkingDir
	if wd == "" {
		wd, _ = os.Getwd()
	}

	var entry string
	switch {
	case len(opts.EntryPoints) > 0:
		entry = opts.EntryPoints[0]
	case len(opts.EntryPointsAdvanced) > 0:
		entry = opts.EntryPointsAdvanced[0].InputPath
	default:
		return wd
	}

	if !filepath.IsAbs(entry) {
		entry = filepath.Join(wd, entry)
	}
	return filepath.Dir(entry)
}

func (s *session) start() error {
	s.checkVersion()

	b, err := s.transformer.Resolve(s.ctx, options.Input{
		Dir:             s.dir,
		Tsconfig:        s.cfg.Tsconfig,
		DisableTsconfig: s.cfg.DisableTsconfig,
		Overrides:       s.cfg.CompilerOptions,
	})
	if err != nil {
		s.logger.Error("Error resolving compiler options", zap.Error(err))
		return err
	}

	s.current.Store(b)

	return nil
}

// checkVersion warns once about unusable version metadata. The compiler is
// used regardless.
func (p *plugin) checkVersion() {
	p.versionOnce.Do(func() {
		v, ok := p.transformer.compiler.(transpile.Versioned)
		if !ok {
			return
		}
		version := v.Version()
		if version != "" && version[0] != 'v' {
			version = "v" + version
		}
		if !semver.IsValid(version) {
			p.logger.Warn("TypeScript compiler reports no valid version, continuing anyway",
				zap.String("version", v.Version()),
			)
			return
		}
		p.logger.Debug("Using TypeScript compiler", zap.String("version", version))
	})
}

func (s *session) build() (*Build, error) {
	b := s.current.Load()
	if b == nil {
		return nil, fmt.Errorf("%s plugin: build has not started", PluginName)
	}
	return b, nil
}

func (p *plugin) filtered(path string) bool {
	for _, re := range p.exclude {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (s *session) load(args api.OnLoadArgs) (api.OnLoadResult, error) {
	if s.filtered(args.Path) {
		return api.OnLoadResult{}, nil
	}

	b, err := s.build()
	if err != nil {
		return api.OnLoadResult{}, err
	}

	source, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	res, err := s.transformer.Transform(s.ctx, b, args.Path, string(source))
	if err != nil {
		s.logger.Debug("Transform failed", zap.String("file", args.Path), zap.Error(err))
		return api.OnLoadResult{}, err
	}

	// esbuild picks up input source maps from an inline comment only
	contents := res.Code
	if res.Map != nil && !sourcemap.HasDataURL(contents) {
		contents = sourcemap.AppendDataURL(contents, res.Map)
	}

	loader := api.LoaderJS
	if b.Options.PreserveJSX {
		loader = api.LoaderJSX
	}

	return api.OnLoadResult{
		Contents:   &contents,
		Loader:     loader,
		ResolveDir: filepath.Dir(args.Path),
	}, nil
}

// loadHelper serves the shared module of one helper. Modules importing it
// were transformed first, so its definition is already registered.
func (s *session) loadHelper(args api.OnLoadArgs) (api.OnLoadResult, error) {
	b, err := s.build()
	if err != nil {
		return api.OnLoadResult{}, err
	}

	contents, ok := b.Helpers.Module(args.Path)
	if !ok {
		return api.OnLoadResult{}, fmt.Errorf("%s plugin: no definition of helper %s", PluginName, args.Path)
	}

	return api.OnLoadResult{
		Contents: &contents,
		Loader:   api.LoaderJS,
	}, nil
}

func (s *session) end(result *api.BuildResult) (api.OnEndResult, error) {
	b := s.current.Load()
	if b == nil {
		return api.OnEndResult{}, nil
	}

	stats := b.Stats()
	s.logger.Info("Build finished",
		zap.Int64("files", stats.Files),
		zap.Int64("failed", stats.Failed),
		zap.Int("helpers", stats.Helpers),
		zap.Int64("helpersReplaced", stats.HelpersReplaced),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)),
	)

	return api.OnEndResult{}, nil
}
