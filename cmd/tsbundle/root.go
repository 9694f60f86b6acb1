package main

import (
	"fmt"
	"strings"

	"go.miragespace.co/tsbundle"
	"go.miragespace.co/tsbundle/transpile"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set via build-time ldflags
var version = "dev"

type flags struct {
	outfile    string
	tsconfig   string
	noTsconfig bool
	sourcemap  bool
	format     string
	target     string
	typescript string
	shards     int
	tslib      string
	minify     bool
	verbose    bool
}

var formats = map[string]api.Format{
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
	"iife": api.FormatIIFE,
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "tsbundle <entry>",
		Short: "Bundle a TypeScript entry point",
		Long: `tsbundle bundles a TypeScript entry point with esbuild, transpiling every
.ts and .tsx file through the TypeScript compiler.

When --typescript points to typescript.js the real compiler runs in an
embedded JavaScript VM. Otherwise the compiler bundled at build time
(-tags typescript) is used, falling back to esbuild's own transform.

Examples:
  tsbundle src/main.ts
  tsbundle src/main.ts -o dist/main.js --sourcemap
  tsbundle src/main.ts --typescript node_modules/typescript/lib/typescript.js`,
		Args:         cobra.ExactArgs(1),
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.outfile, "outfile", "o", "", "Write the bundle to this file instead of stdout")
	fl.StringVarP(&f.tsconfig, "tsconfig", "p", "", "Path to tsconfig.json (default: nearest to the entry point)")
	fl.BoolVar(&f.noTsconfig, "no-tsconfig", false, "Ignore tsconfig.json")
	fl.BoolVar(&f.sourcemap, "sourcemap", false, "Emit a source map for the bundle")
	fl.StringVarP(&f.format, "format", "f", "esm", "Output format: esm, cjs or iife")
	fl.StringVar(&f.target, "target", "", "Compiler target, overrides tsconfig.json")
	fl.StringVar(&f.typescript, "typescript", "", "Path to typescript.js")
	fl.IntVar(&f.shards, "shards", 1, "Number of TypeScript VMs")
	fl.StringVar(&f.tslib, "tslib", "", "File that imports of \"tslib\" resolve to")
	fl.BoolVar(&f.minify, "minify", false, "Minify the bundle")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func run(cmd *cobra.Command, f *flags, entry string) error {
	format, ok := formats[strings.ToLower(f.format)]
	if !ok {
		return fmt.Errorf("unknown format %q", f.format)
	}

	logger, err := newLogger(f.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	compiler, err := newCompiler(logger, f)
	if err != nil {
		return err
	}
	if h, ok := compiler.(*transpile.Host); ok {
		defer h.Stop()
	}

	var overrides map[string]any
	if f.target != "" {
		overrides = map[string]any{"target": f.target}
	}

	plugin, err := tsbundle.NewPlugin(tsbundle.Config{
		Tsconfig:        f.tsconfig,
		DisableTsconfig: f.noTsconfig,
		Typescript:      compiler,
		Tslib:           f.tslib,
		CompilerOptions: overrides,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	opts := api.BuildOptions{
		EntryPoints:       []string{entry},
		Bundle:            true,
		Format:            format,
		Outfile:           f.outfile,
		Write:             f.outfile != "",
		MinifyWhitespace:  f.minify,
		MinifyIdentifiers: f.minify,
		MinifySyntax:      f.minify,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{plugin},
	}
	if f.sourcemap {
		if f.outfile != "" {
			opts.Sourcemap = api.SourceMapLinked
		} else {
			opts.Sourcemap = api.SourceMapInline
		}
	}

	result, err := tsbundle.Bundle(opts)
	if err != nil {
		return err
	}

	if f.outfile != "" {
		logger.Info("Bundle written", zap.String("outfile", f.outfile))
		return nil
	}
	for _, out := range result.OutputFiles {
		if _, err := cmd.OutOrStdout().Write(out.Contents); err != nil {
			return err
		}
	}
	return nil
}

func newCompiler(logger *zap.Logger, f *flags) (transpile.Compiler, error) {
	if f.typescript != "" {
		return transpile.LoadHost(logger, f.typescript, f.shards)
	}
	return transpile.Default(logger, f.shards)
}
