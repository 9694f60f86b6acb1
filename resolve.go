package tsbundle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.miragespace.co/tsbundle/helpers"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"
)

var (
	typescriptImporter = regexp.MustCompile(`\.(ts|tsx|mts|cts)$`)

	// an import resolving to any of these is bundled normally
	runtimeCandidates = []string{
		"", ".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs", ".json",
		"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
	}
	declarationCandidates = []string{".d.ts", "/index.d.ts"}
)

// resolveDeclaration keeps explicit imports of declaration files out of the
// bundle, they contain no runtime code.
func (s *session) resolveDeclaration(args api.OnResolveArgs) (api.OnResolveResult, error) {
	s.logger.Debug("Declaration import left external",
		zap.String("path", args.Path),
		zap.String("importer", args.Importer),
	)
	return api.OnResolveResult{
		Path:     args.Path,
		External: true,
	}, nil
}

// resolveRelative handles extensionless relative imports from TypeScript
// files that only resolve to a declaration file.
func (s *session) resolveRelative(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if !typescriptImporter.MatchString(args.Importer) {
		return api.OnResolveResult{}, nil
	}

	dir := args.ResolveDir
	if dir == "" {
		dir = filepath.Dir(args.Importer)
	}
	if declarationOnly(filepath.Join(dir, filepath.FromSlash(args.Path))) {
		return s.resolveDeclaration(args)
	}

	return api.OnResolveResult{}, nil
}

// resolveHelper maps helper imports inserted by the transformer into the
// helper namespace, keyed by helper name.
func (s *session) resolveHelper(args api.OnResolveArgs) (api.OnResolveResult, error) {
	name := strings.TrimPrefix(args.Path, helpers.ImportPrefix)
	b, err := s.build()
	if err != nil {
		return api.OnResolveResult{}, err
	}
	if !b.Helpers.Known(name) {
		return api.OnResolveResult{}, fmt.Errorf("%s plugin: unknown helper %q", PluginName, name)
	}
	return api.OnResolveResult{
		Path:      name,
		Namespace: helpers.Namespace,
	}, nil
}

func (s *session) resolveTslib(args api.OnResolveArgs) (api.OnResolveResult, error) {
	path := s.cfg.Tslib
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	return api.OnResolveResult{
		Path: path,
	}, nil
}

// declarationOnly reports whether base resolves to a .d.ts file and nothing
// with runtime code.
func declarationOnly(base string) bool {
	for _, ext := range runtimeCandidates {
		if isFile(base + filepath.FromSlash(ext)) {
			return false
		}
	}
	for _, ext := range declarationCandidates {
		if isFile(base + filepath.FromSlash(ext)) {
			return true
		}
	}
	return false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
