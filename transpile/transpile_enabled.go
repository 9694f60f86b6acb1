//go:build typescript

package transpile

import (
	"fmt"

	"github.com/clarkmcc/go-typescript"
	"github.com/dop251/goja"
)

var ErrTypescriptNotEnabled = fmt.Errorf("typescript support is not enabled on this build")

const BundledVersion = "v4.9.3"

func BundledSource() (prog *goja.Program, version string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error loading bundled typescript %s: %v", BundledVersion, r)
		}
	}()

	var config typescript.Config
	typescript.WithVersion(BundledVersion)(&config)
	if config.TypescriptSource == nil {
		return nil, "", ErrTypescriptNotEnabled
	}

	return config.TypescriptSource, BundledVersion, nil
}
