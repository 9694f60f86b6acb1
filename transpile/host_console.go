package transpile

import (
	"github.com/dop251/goja_nodejs/console"
	"go.uber.org/zap"
)

const consoleModule = "console"

// shardConsole receives console output of the compiler running on one
// shard. It is only touched from the shard's loop, file is the module being
// transpiled when the output was written.
type shardConsole struct {
	logger *zap.Logger
	file   string
}

var _ console.Printer = (*shardConsole)(nil)

func newShardConsole(logger *zap.Logger, shard int) *shardConsole {
	return &shardConsole{
		logger: logger.Named("typescript").With(zap.Int("shard", shard)),
	}
}

func (c *shardConsole) fields() []zap.Field {
	if c.file == "" {
		return nil
	}
	return []zap.Field{zap.String("file", c.file)}
}

func (c *shardConsole) Log(s string) {
	c.logger.Debug(s, c.fields()...)
}

func (c *shardConsole) Warn(s string) {
	c.logger.Warn(s, c.fields()...)
}

func (c *shardConsole) Error(s string) {
	c.logger.Error(s, c.fields()...)
}
