package tsbundle

import (
	"sync/atomic"

	"go.miragespace.co/tsbundle/helpers"
	"go.miragespace.co/tsbundle/options"
)

// Build is the state shared by every file transformed during one build. A
// new Build is created each time the bundler starts, so nothing leaks from
// one build into the next.
type Build struct {
	Options *options.Resolved
	Helpers *helpers.Registry

	files    atomic.Int64
	failed   atomic.Int64
	replaced atomic.Int64
}

func NewBuild(resolved *options.Resolved, registry *helpers.Registry) *Build {
	if registry == nil {
		registry = helpers.NewRegistry()
	}
	return &Build{
		Options: resolved,
		Helpers: registry,
	}
}

// Stats is a summary of a build so far.
type Stats struct {
	Files  int64
	Failed int64
	// Helpers is the number of distinct helpers in the shared modules,
	// HelpersReplaced the number of inline definitions replaced by imports.
	Helpers         int
	HelpersReplaced int64
}

func (b *Build) Stats() Stats {
	return Stats{
		Files:           b.files.Load(),
		Failed:          b.failed.Load(),
		Helpers:         b.Helpers.Len(),
		HelpersReplaced: b.replaced.Load(),
	}
}
