package helpers

import (
	"regexp"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v2"
)

var referencePattern = regexp.MustCompile(`__[A-Za-z0-9_$]+`)

type helper struct {
	module string
	code   string
}

// Registry holds the single copy of every helper defined during one build.
// The first module to define a helper supplies its code, every module
// (including that one) imports it from the shared helper module.
type Registry struct {
	known   *xsync.MapOf[string, struct{}]
	helpers *xsync.MapOf[string, helper]
}

// NewRegistry returns a registry that recognizes the given helper names, or
// the TypeScript and esbuild helpers when none are given.
func NewRegistry(names ...string) *Registry {
	r := &Registry{
		known:   xsync.NewMapOf[struct{}](),
		helpers: xsync.NewMapOf[helper](),
	}
	if len(names) == 0 {
		r.Register(TypeScriptHelpers...)
		r.Register(ESBuildHelpers...)
		return r
	}
	r.Register(names...)
	return r
}

// Register adds helper names to the set of recognized signatures.
func (r *Registry) Register(names ...string) {
	for _, name := range names {
		r.known.Store(name, struct{}{})
	}
}

func (r *Registry) Known(name string) bool {
	_, ok := r.known.Load(name)
	return ok
}

// Define stores code as the definition of name unless one is already
// stored. first reports whether module supplied the stored definition.
func (r *Registry) Define(name, module, code string) (owner string, first bool) {
	h, _ := r.helpers.LoadOrStore(name, helper{module: module, code: code})
	return h.module, h.module == module
}

// Owner returns the module whose definition of name is shared.
func (r *Registry) Owner(name string) (string, bool) {
	h, ok := r.helpers.Load(name)
	return h.module, ok
}

// Owners returns a snapshot of helper name to defining module.
func (r *Registry) Owners() map[string]string {
	m := make(map[string]string, r.helpers.Size())
	r.helpers.Range(func(name string, h helper) bool {
		m[name] = h.module
		return true
	})
	return m
}

// Len returns the number of helpers defined so far.
func (r *Registry) Len() int {
	return r.helpers.Size()
}

// Module returns the source of the helper module exporting name. Other
// helpers the definition refers to are imported from their own modules.
func (r *Registry) Module(name string) (string, bool) {
	h, ok := r.helpers.Load(name)
	if !ok {
		return "", false
	}

	deps := make(map[string]struct{})
	for _, ref := range referencePattern.FindAllString(h.code, -1) {
		if ref == name {
			continue
		}
		if _, defined := r.helpers.Load(ref); defined {
			deps[ref] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(deps))
	for dep := range deps {
		sorted = append(sorted, dep)
	}
	sort.Strings(sorted)

	var b strings.Builder
	for _, dep := range sorted {
		b.WriteString(ImportStatement(dep))
		b.WriteByte('\n')
	}
	b.WriteString(strings.TrimRight(h.code, "\n"))
	b.WriteString("\nexport { ")
	b.WriteString(name)
	b.WriteString(" };\n")

	return b.String(), true
}
