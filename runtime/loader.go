package runtime

import (
	"errors"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"
)

// ModuleExtension is appended to module names by LoadModulesFromFS.
const ModuleExtension = ".wren"

// LoadModulesFromFS returns a loader that serves module name from
// fsys as name + ".wren". Missing files leave the request to the next loader.
func LoadModulesFromFS(fsys fs.FS) LoadModuleFunc {
	return func(_ *VM, name string) (LoadModuleResult, bool) {
		file := path.Clean(name) + ModuleExtension
		if !fs.ValidPath(file) {
			return LoadModuleResult{}, false
		}
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				Logger().Warn("load module", zap.String("module", name), zap.Error(err))
			}
			return LoadModuleResult{}, false
		}
		return LoadModuleResult{Source: string(data)}, true
	}
}

// ResolveRelative returns a resolver that interprets imports starting with
// "./" or "../" relative to the importing module. Other names are left to
// the next resolver.
func ResolveRelative() ResolveModuleFunc {
	return func(_ *VM, importer, name string) (string, bool) {
		if !strings.HasPrefix(name, "./") && !strings.HasPrefix(name, "../") {
			return "", false
		}
		return path.Join(path.Dir(importer), name), true
	}
}
