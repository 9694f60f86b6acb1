package tsbundle

import (
	"github.com/evanw/esbuild/pkg/api"
)

// Bundle runs an esbuild build and turns its error messages into a
// BuildError. A single failing file fails the whole build.
func Bundle(opts api.BuildOptions) (api.BuildResult, error) {
	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return result, &BuildError{Messages: result.Errors}
	}
	return result, nil
}
