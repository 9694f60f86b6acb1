package options

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const TsconfigName = "tsconfig.json"

// Option names never contain this, so koanf does not split keys such as
// "@app/*" under compilerOptions.paths.
const keyDelim = "\x1f"

// Discover returns the nearest tsconfig.json in dir or one of its parents,
// or "" when there is none.
func Discover(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		path := filepath.Join(dir, TsconfigName)
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return path, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadTsconfig returns the compilerOptions of the tsconfig file at path, with
// the chain of "extends" applied.
func LoadTsconfig(path string) (map[string]interface{}, error) {
	return loadTsconfig(path, map[string]struct{}{})
}

func loadTsconfig(path string, seen map[string]struct{}) (map[string]interface{}, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, ok := seen[abs]; ok {
		return nil, fmt.Errorf("circular extends in %s", abs)
	}
	seen[abs] = struct{}{}

	k := koanf.New(keyDelim)
	if err := k.Load(file.Provider(abs), JSONCParser()); err != nil {
		return nil, fmt.Errorf("error loading %s: %w", abs, err)
	}

	merged := koanf.New(keyDelim)

	if base := k.String("extends"); base != "" {
		parentPath, err := resolveExtends(filepath.Dir(abs), base)
		if err != nil {
			return nil, fmt.Errorf("error resolving extends of %s: %w", abs, err)
		}
		parent, err := loadTsconfig(parentPath, seen)
		if err != nil {
			return nil, err
		}
		if err := merged.Load(confmap.Provider(parent, ""), nil); err != nil {
			return nil, err
		}
	}

	if err := overlay(merged, k.Cut("compilerOptions").Raw()); err != nil {
		return nil, err
	}

	return merged.Raw(), nil
}

// overlay loads opts into k one option at a time. An option replaces the
// previous value as a whole, objects such as "paths" are not merged.
func overlay(k *koanf.Koanf, opts map[string]interface{}) error {
	for key := range opts {
		k.Delete(key)
	}
	return k.Load(confmap.Provider(opts, ""), nil)
}

func resolveExtends(dir, base string) (string, error) {
	if filepath.IsAbs(base) || strings.HasPrefix(base, ".") {
		p := base
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, base)
		}
		if filepath.Ext(p) != ".json" {
			p += ".json"
		}
		return p, nil
	}

	// package reference, e.g. "@tsconfig/node18/tsconfig.json"
	candidates := []string{base, base + ".json", filepath.Join(base, TsconfigName)}
	for d := dir; ; d = filepath.Dir(d) {
		for _, c := range candidates {
			p := filepath.Join(d, "node_modules", c)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}

	return "", fmt.Errorf("cannot find %q in node_modules: %w", base, fs.ErrNotExist)
}
