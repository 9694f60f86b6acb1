package transpile

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
)

//go:embed host.js
var hostScript string

var hostProg = goja.MustCompile("tsbundle-host", hostScript, true)

// Host runs a TypeScript compiler (typescript.js) inside goja. Use shards > 1
// to spread concurrent transpile calls over multiple VMs, each VM handles one
// call at a time.
type Host struct {
	logger    *zap.Logger
	shards    []*hostShard
	_         cpu.CacheLinePad
	nextShard uint32
	_         cpu.CacheLinePad
	stopped   atomic.Bool
	version   string
}

var _ Compiler = (*Host)(nil)
var _ Versioned = (*Host)(nil)

type HostConfig struct {
	Logger *zap.Logger
	// Source is the compiled typescript.js, it must define the global "ts".
	Source *goja.Program
	Shards int
}

type hostShard struct {
	eventLoop *eventloop.EventLoop
	vm        *goja.Runtime
	transpile goja.Callable
	convert   goja.Callable
	version   string
	console   *shardConsole

	mu      sync.Mutex
	running uint64
	seq     atomic.Uint64
}

type jsTranspileResult struct {
	OutputText    string       `json:"outputText"`
	SourceMapText string       `json:"sourceMapText"`
	Diagnostics   []Diagnostic `json:"diagnostics"`
}

type jsConvertResult struct {
	Options map[string]any `json:"options"`
	Errors  []Diagnostic   `json:"errors"`
}

// CompileSource compiles a typescript.js source for use with NewHost.
func CompileSource(name, source string) (*goja.Program, error) {
	if source == "" {
		return nil, ErrNoTypescriptSource
	}
	prog, err := goja.Compile(name, source, false)
	if err != nil {
		return nil, fmt.Errorf("error compiling typescript source: %w", err)
	}
	return prog, nil
}

// LoadHost reads typescript.js from path, usually
// node_modules/typescript/lib/typescript.js, and starts a Host with it.
func LoadHost(logger *zap.Logger, path string, shards int) (*Host, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	prog, err := CompileSource(path, string(b))
	if err != nil {
		return nil, err
	}

	return NewHost(HostConfig{
		Logger: logger,
		Source: prog,
		Shards: shards,
	})
}

func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Source == nil {
		return nil, ErrNoTypescriptSource
	}
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}

	h := &Host{
		logger: cfg.Logger,
		shards: make([]*hostShard, cfg.Shards),
	}

	start := time.Now()

	g := new(errgroup.Group)
	for i := range h.shards {
		i := i
		g.Go(func() error {
			s, err := newHostShard(cfg.Logger, cfg.Source, i)
			if err != nil {
				return err
			}
			h.shards[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.Stop()
		return nil, err
	}

	h.version = h.shards[0].version

	h.logger.Info("TypeScript host ready",
		zap.String("version", h.version),
		zap.Int("shards", cfg.Shards),
		zap.Duration("duration", time.Since(start)),
	)

	return h, nil
}

func newHostShard(logger *zap.Logger, source *goja.Program, index int) (*hostShard, error) {
	out := newShardConsole(logger, index)

	registry := require.NewRegistry()
	registry.RegisterNativeModule(consoleModule, console.RequireWithPrinter(out))

	eventLoop := eventloop.NewEventLoop(
		eventloop.EnableConsole(false),
		eventloop.WithRegistry(registry),
	)
	eventLoop.Start()

	s := &hostShard{
		eventLoop: eventLoop,
		console:   out,
	}

	setup := make(chan error, 1)
	eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		vm.Set("console", require.Require(vm, consoleModule))

		if _, err := vm.RunProgram(source); err != nil {
			setup <- fmt.Errorf("error evaluating typescript source: %w", err)
			return
		}

		if ts := vm.Get("ts"); ts == nil || goja.IsUndefined(ts) {
			setup <- fmt.Errorf("typescript source did not define the global \"ts\"")
			return
		}

		if _, err := vm.RunProgram(hostProg); err != nil {
			setup <- fmt.Errorf("error setting up typescript host: %w", err)
			return
		}

		glue := vm.Get("__tsbundle").ToObject(vm)

		var ok bool
		if s.transpile, ok = goja.AssertFunction(glue.Get("transpile")); !ok {
			setup <- fmt.Errorf("typescript host: transpile is not a function")
			return
		}
		if s.convert, ok = goja.AssertFunction(glue.Get("convert")); !ok {
			setup <- fmt.Errorf("typescript host: convert is not a function")
			return
		}

		if version, ok := goja.AssertFunction(glue.Get("version")); ok {
			if v, err := version(goja.Undefined()); err == nil {
				s.version = v.String()
			}
		}

		s.vm = vm // reference is kept for .Interrupt

		setup <- nil
	})

	if err := <-setup; err != nil {
		eventLoop.StopNoWait()
		return nil, err
	}

	return s, nil
}

// run executes fn on the shard's loop. When ctx ends while fn is running the
// VM is interrupted.
func (s *hostShard) run(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := s.seq.Add(1)
	done := make(chan error, 1)

	s.eventLoop.RunOnLoop(func(vm *goja.Runtime) {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}

		s.mu.Lock()
		s.running = id
		s.mu.Unlock()

		err := fn(vm)

		s.mu.Lock()
		s.running = 0
		vm.ClearInterrupt()
		s.mu.Unlock()

		done <- err
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		if s.running == id {
			s.vm.Interrupt(ctx.Err())
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (h *Host) shard() *hostShard {
	n := atomic.AddUint32(&h.nextShard, 1)
	return h.shards[int(n)%len(h.shards)]
}

func (h *Host) Version() string {
	return h.version
}

func (h *Host) TranspileModule(ctx context.Context, fileName, source string, options map[string]any) (*Result, error) {
	if h.stopped.Load() {
		return nil, ErrHostStopped
	}

	if options == nil {
		options = map[string]any{}
	}

	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("error encoding compiler options: %w", err)
	}

	var raw string
	s := h.shard()
	err = s.run(ctx, func(vm *goja.Runtime) error {
		s.console.file = fileName
		defer func() { s.console.file = "" }()

		v, err := s.transpile(goja.Undefined(), vm.ToValue(fileName), vm.ToValue(source), vm.ToValue(string(optionsJSON)))
		if err != nil {
			return fmt.Errorf("typescript transpileModule: %w", err)
		}
		raw = v.String()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out jsTranspileResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("error decoding transpile result: %w", err)
	}

	return &Result{
		OutputText:    out.OutputText,
		Diagnostics:   out.Diagnostics,
		SourceMapText: out.SourceMapText,
	}, nil
}

func (h *Host) ConvertCompilerOptionsFromJSON(ctx context.Context, raw map[string]any, basePath string) (map[string]any, []Diagnostic, error) {
	if h.stopped.Load() {
		return nil, nil, ErrHostStopped
	}

	if raw == nil {
		raw = map[string]any{}
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("error encoding compiler options: %w", err)
	}

	var result string
	s := h.shard()
	err = s.run(ctx, func(vm *goja.Runtime) error {
		v, err := s.convert(goja.Undefined(), vm.ToValue(string(rawJSON)), vm.ToValue(basePath))
		if err != nil {
			return fmt.Errorf("typescript convertCompilerOptionsFromJson: %w", err)
		}
		result = v.String()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var out jsConvertResult
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		return nil, nil, fmt.Errorf("error decoding converted options: %w", err)
	}
	if out.Options == nil {
		out.Options = map[string]any{}
	}

	return out.Options, out.Errors, nil
}

// Stop shuts down every VM. Calls after Stop fail with ErrHostStopped.
func (h *Host) Stop() {
	if h.stopped.Swap(true) {
		return
	}
	for _, s := range h.shards {
		if s != nil {
			s.eventLoop.StopNoWait()
		}
	}
}
