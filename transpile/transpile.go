//go:build !typescript

package transpile

import (
	"fmt"

	"github.com/dop251/goja"
)

var ErrTypescriptNotEnabled = fmt.Errorf("typescript support is not enabled on this build")

// BundledSource returns the TypeScript compiler compiled into the binary.
// Build with -tags typescript to include it.
func BundledSource() (*goja.Program, string, error) {
	return nil, "", ErrTypescriptNotEnabled
}
