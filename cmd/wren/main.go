package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/automap"
	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/runtime"
	"github.com/wippyai/wren-runtime/wrentest"
)

// Exit codes follow the Wren CLI.
const (
	exitOK           = 0
	exitFailure      = 1
	exitUsage        = 64
	exitCompileError = 65
	exitRuntimeError = 70
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a TOML config file (default ./"+ConfigFile+" if present)")
		wasmFile    = flag.String("wasm", "", "Wren reactor wasm file; empty uses the built-in engine")
		source      = flag.String("e", "", "Source to run instead of a script file")
		modulePath  = flag.String("I", "", "Module directories (comma-separated)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
		version     = flag.Bool("version", false, "Print the VM version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wren [flags] [script.wren]")
		fmt.Fprintln(os.Stderr, "       wren [flags] -e 'System.print(1 + 2)'")
		fmt.Fprintln(os.Stderr, "       wren [flags] -i  (interactive mode)")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() > 1 || (flag.NArg() == 1 && *source != "") {
		flag.Usage()
		os.Exit(exitUsage)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	if *wasmFile != "" {
		cfg.Wasm = *wasmFile
	}
	if *modulePath != "" {
		cfg.ModulePath = append(cfg.ModulePath, strings.Split(*modulePath, ",")...)
	}
	if *verbose {
		cfg.Verbose = true
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	defer log.Sync()
	runtime.SetLogger(log)
	engine.SetLogger(log)
	automap.SetLogger(log)

	inv := invocation{
		script:      flag.Arg(0),
		source:      *source,
		interactive: *interactive,
		version:     *version,
		terminal:    term.IsTerminal(int(os.Stdin.Fd())),
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	os.Exit(run(context.Background(), cfg, inv))
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// invocation is what to run and where its output goes.
type invocation struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	script      string
	source      string
	interactive bool
	version     bool
	terminal    bool
}

func run(ctx context.Context, cfg *Config, inv invocation) int {
	eng, closeEngine, err := newEngine(ctx, cfg)
	if err != nil {
		fmt.Fprintf(inv.stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := closeEngine(); err != nil {
			fmt.Fprintf(inv.stderr, "Error: close engine: %v\n", err)
		}
	}()

	dirs := cfg.ModulePath
	if inv.script != "" {
		dirs = append([]string{filepath.Dir(inv.script)}, dirs...)
	} else {
		dirs = append([]string{"."}, dirs...)
	}

	if inv.interactive || (inv.script == "" && inv.source == "" && inv.terminal && !inv.version) {
		if err := runInteractive(eng, cfg, dirs); err != nil {
			fmt.Fprintf(inv.stderr, "Error: %v\n", err)
			return exitFailure
		}
		return exitOK
	}

	vmCfg := vmConfig(cfg, dirs)
	vmCfg.OnWrite(runtime.WriteTo(inv.stdout))
	vmCfg.OnError(runtime.ErrorsTo(inv.stderr))
	vm, err := runtime.NewVMWithConfig(eng, &vmCfg)
	if err != nil {
		fmt.Fprintf(inv.stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer func() {
		if err := vm.Close(); err != nil {
			fmt.Fprintf(inv.stderr, "Error: close vm: %v\n", err)
		}
	}()

	if inv.version {
		fmt.Fprintf(inv.stdout, "wren %s\n", versionString(vm.Version()))
		return exitOK
	}

	src, err := inv.read()
	if err != nil {
		fmt.Fprintf(inv.stderr, "Error: %v\n", err)
		return exitFailure
	}

	res, err := vm.Interpret(src)
	if err != nil {
		fmt.Fprintf(inv.stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitCode(res)
}

func (inv invocation) read() (string, error) {
	switch {
	case inv.source != "":
		return inv.source, nil
	case inv.script != "":
		data, err := os.ReadFile(inv.script)
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(inv.stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

func exitCode(res wrenruntime.InterpretResult) int {
	switch res {
	case wrenruntime.ResultSuccess:
		return exitOK
	case wrenruntime.ResultCompileError:
		return exitCompileError
	default:
		return exitRuntimeError
	}
}

// versionString formats WREN_VERSION_NUMBER (major*1000000 + minor*1000 + patch).
func versionString(n int) string {
	return fmt.Sprintf("%d.%d.%d", n/1000000, n/1000%1000, n%1000)
}

// newEngine returns the wazero engine when a reactor is configured and the
// built-in engine otherwise.
func newEngine(ctx context.Context, cfg *Config) (wrenruntime.Engine, func() error, error) {
	if cfg.Wasm == "" {
		return wrentest.New(), func() error { return nil }, nil
	}
	data, err := os.ReadFile(cfg.Wasm)
	if err != nil {
		return nil, nil, fmt.Errorf("read wasm: %w", err)
	}
	eng, err := engine.NewWazeroEngineWithConfig(ctx, data, &engine.Config{
		MemoryLimitPages: cfg.Engine.MemoryLimitPages,
		CacheDir:         cfg.Engine.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", cfg.Wasm, err)
	}
	return eng, eng.Close, nil
}

// vmConfig builds the VM configuration shared by scripts and the REPL:
// relative imports, modules loaded from dirs in order, and heap tuning.
func vmConfig(cfg *Config, dirs []string) runtime.Config {
	vmCfg := runtime.Config{
		InitialHeapSize:   cfg.Heap.Initial,
		MinHeapSize:       cfg.Heap.Min,
		HeapGrowthPercent: cfg.Heap.GrowthPercent,
	}
	vmCfg.OnResolveModule(runtime.ResolveRelative())
	for _, dir := range dirs {
		vmCfg.OnLoadModule(runtime.LoadModulesFromFS(os.DirFS(dir)))
	}
	return vmCfg
}
