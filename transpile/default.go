package transpile

import (
	"errors"

	"go.uber.org/zap"
)

// Default returns a goja Host running the TypeScript compiler bundled with
// -tags typescript, and falls back to esbuild otherwise.
func Default(logger *zap.Logger, shards int) (Compiler, error) {
	prog, version, err := BundledSource()
	if errors.Is(err, ErrTypescriptNotEnabled) {
		logger.Debug("Bundled TypeScript not available, using esbuild")
		return NewESBuild(), nil
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Using bundled TypeScript", zap.String("version", version))

	return NewHost(HostConfig{
		Logger: logger,
		Source: prog,
		Shards: shards,
	})
}
