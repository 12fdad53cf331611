package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASIModule is the import module name of WASI preview1.
const WASIModule = wasi_snapshot_preview1.ModuleName

// importsModule reports whether compiled imports any function from module.
func importsModule(compiled wazero.CompiledModule, module string) bool {
	for _, def := range compiled.ImportedFunctions() {
		if mod, _, _ := def.Import(); mod == module {
			return true
		}
	}
	return false
}

// instantiateWASI instantiates WASI preview1 in r unless it already is.
// Reactors built with wasi-libc import it for stdio and the clock even when
// the embedding never touches a file.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (api.Closer, error) {
	if r.Module(WASIModule) != nil {
		return nil, nil
	}
	builder := r.NewHostModuleBuilder(WASIModule)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}
