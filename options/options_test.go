package options

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.miragespace.co/tsbundle/transpile"

	"github.com/stretchr/testify/require"
)

type rejectingConverter struct {
	diags []transpile.Diagnostic
	err   error
	seen  map[string]any
}

func (c *rejectingConverter) ConvertCompilerOptionsFromJSON(ctx context.Context, raw map[string]any, basePath string) (map[string]any, []transpile.Diagnostic, error) {
	c.seen = raw
	if c.err != nil {
		return nil, nil, c.err
	}
	return raw, c.diags, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReservedKeys(t *testing.T) {
	for _, key := range ReservedKeys {
		t.Run(key, func(t *testing.T) {
			as := require.New(t)

			_, err := Resolve(context.Background(), Input{
				Dir:             t.TempDir(),
				DisableTsconfig: true,
				Overrides:       map[string]any{"target": "es5", key: true},
			}, nil)

			var cfgErr *ConfigurationError
			as.True(errors.As(err, &cfgErr))
			as.Equal(key, cfgErr.Option)
			as.ErrorIs(err, ErrReservedOption)
			as.Contains(err.Error(), "Couldn't process compiler options")
		})
	}
}

func TestDeclarationOptionsDropped(t *testing.T) {
	as := require.New(t)

	r, err := Resolve(context.Background(), Input{
		DisableTsconfig: true,
		Overrides: map[string]any{
			"declaration":    true,
			"declarationMap": true,
			"outDir":         "dist",
			"strict":         true,
		},
	}, nil)
	as.NoError(err)

	as.NotContains(r.CompilerOptions, "declaration")
	as.NotContains(r.CompilerOptions, "declarationMap")
	as.NotContains(r.CompilerOptions, "outDir")
	as.Equal(true, r.CompilerOptions["strict"])
	as.Equal(ModuleFormat, r.CompilerOptions["module"])
}

func TestSourceMapReconciliation(t *testing.T) {
	cases := []struct {
		name      string
		overrides map[string]any
		want      SourceMapMode
	}{
		{"none", map[string]any{}, SourceMapNone},
		{"both off", map[string]any{"sourceMap": false, "inlineSourceMap": false}, SourceMapNone},
		{"external", map[string]any{"sourceMap": true}, SourceMapExternal},
		{"inline", map[string]any{"inlineSourceMap": true}, SourceMapInline},
		{"inline wins", map[string]any{"sourceMap": true, "inlineSourceMap": true}, SourceMapInline},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			as := require.New(t)

			r, err := Resolve(context.Background(), Input{DisableTsconfig: true, Overrides: c.overrides}, nil)
			as.NoError(err)
			as.Equal(c.want, r.SourceMap)
			as.NotContains(r.CompilerOptions, "inlineSourceMap")
			as.Equal(c.want != SourceMapNone, r.CompilerOptions["sourceMap"])
		})
	}
}

func TestTsconfigDiscovery(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "base", "tsconfig.base.json"), `{
		// shared settings
		"compilerOptions": {
			"target": "es2017",
			"strict": true,
			"paths": { "@app/*": ["src/*"] },
		},
	}`)
	writeFile(t, filepath.Join(dir, TsconfigName), `{
		"extends": "./base/tsconfig.base",
		"compilerOptions": {
			/* project overrides */
			"target": "es2019",
			"jsx": "preserve",
			"declaration": true,
		},
		"include": ["src"],
	}`)

	r, err := Resolve(context.Background(), Input{
		Dir:       dir,
		Overrides: map[string]any{"strict": false},
	}, nil)
	as.NoError(err)

	as.Equal(filepath.Join(dir, TsconfigName), r.ConfigFile)
	as.Equal("es2019", r.CompilerOptions["target"])
	as.Equal(false, r.CompilerOptions["strict"])
	as.Equal(map[string]any{"@app/*": []any{"src/*"}}, r.CompilerOptions["paths"])
	as.NotContains(r.CompilerOptions, "declaration")
	as.NotContains(r.CompilerOptions, "include")
	as.True(r.PreserveJSX)
}

func TestTsconfigFoundInParentDirectory(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, TsconfigName), `{
		"compilerOptions": { "target": "es2017", "sourceMap": true },
	}`)
	entryDir := filepath.Join(dir, "src", "pages")
	as.NoError(os.MkdirAll(entryDir, 0o755))

	r, err := Resolve(context.Background(), Input{Dir: entryDir}, nil)
	as.NoError(err)

	as.Equal(filepath.Join(dir, TsconfigName), r.ConfigFile)
	as.Equal(SourceMapExternal, r.SourceMap)
	as.Equal("es2017", r.CompilerOptions["target"])
}

func TestOverridesReplaceWholeOptions(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.json"), `{
		"compilerOptions": { "paths": { "@base/*": ["base/*"] }, "lib": ["es2015"] },
	}`)
	writeFile(t, filepath.Join(dir, TsconfigName), `{
		"extends": "./base.json",
		"compilerOptions": { "paths": { "@app/*": ["src/*"], "@lib/*": ["lib/*"] } },
	}`)

	r, err := Resolve(context.Background(), Input{Dir: dir}, nil)
	as.NoError(err)
	as.Equal(map[string]any{"@app/*": []any{"src/*"}, "@lib/*": []any{"lib/*"}}, r.CompilerOptions["paths"])
	as.Equal([]any{"es2015"}, r.CompilerOptions["lib"])

	r, err = Resolve(context.Background(), Input{
		Dir:       dir,
		Overrides: map[string]any{"paths": map[string]any{"@x/*": []any{"x/*"}}},
	}, nil)
	as.NoError(err)
	as.Equal(map[string]any{"@x/*": []any{"x/*"}}, r.CompilerOptions["paths"])
}

func TestTsconfigDisabledOrMissing(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, TsconfigName), `{"compilerOptions": {"target": "es2019"}}`)

	r, err := Resolve(context.Background(), Input{Dir: dir, DisableTsconfig: true}, nil)
	as.NoError(err)
	as.Empty(r.ConfigFile)
	as.NotContains(r.CompilerOptions, "target")

	r, err = Resolve(context.Background(), Input{Dir: t.TempDir()}, nil)
	as.NoError(err)
	as.Empty(r.ConfigFile)

	_, err = Resolve(context.Background(), Input{Dir: dir, Tsconfig: "missing.json"}, nil)
	as.ErrorIs(err, os.ErrNotExist)
}

func TestTsconfigExplicitPath(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "configs", "build.json"), `{"compilerOptions": {"target": "es2020"}}`)

	r, err := Resolve(context.Background(), Input{Dir: dir, Tsconfig: "configs/build.json"}, nil)
	as.NoError(err)
	as.Equal("es2020", r.CompilerOptions["target"])
}

func TestTsconfigCircularExtends(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"extends": "./b.json"}`)
	writeFile(t, filepath.Join(dir, "b.json"), `{"extends": "./a.json"}`)

	_, err := LoadTsconfig(filepath.Join(dir, "a.json"))
	as.ErrorContains(err, "circular extends")
}

func TestTsconfigExtendsPackage(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "node_modules", "@tsconfig", "strictest", "tsconfig.json"),
		`{"compilerOptions": {"strict": true, "target": "es2022"}}`)
	writeFile(t, filepath.Join(dir, "app", TsconfigName), `{"extends": "@tsconfig/strictest"}`)

	opts, err := LoadTsconfig(filepath.Join(dir, "app", TsconfigName))
	as.NoError(err)
	as.Equal(true, opts["strict"])
	as.Equal("es2022", opts["target"])
}

func TestConverterDiagnostics(t *testing.T) {
	as := require.New(t)

	conv := &rejectingConverter{diags: []transpile.Diagnostic{
		{Category: transpile.CategoryError, Code: 6046, Message: "Argument for '--target' option must be: 'es5'."},
	}}
	_, err := Resolve(context.Background(), Input{
		DisableTsconfig: true,
		Overrides:       map[string]any{"target": "bogus"},
	}, conv)

	var cfgErr *ConfigurationError
	as.True(errors.As(err, &cfgErr))
	as.Contains(err.Error(), "--target")
	as.Equal("bogus", conv.seen["target"])
	as.Equal(ModuleFormat, conv.seen["module"])

	boom := errors.New("boom")
	_, err = Resolve(context.Background(), Input{DisableTsconfig: true}, &rejectingConverter{err: boom})
	as.ErrorIs(err, boom)
	as.False(errors.As(err, &cfgErr))
}
