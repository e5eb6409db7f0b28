//go:build !unix

package checks

import "errors"

// LowerPriority is unsupported on this platform.
func LowerPriority() error {
	return errors.New("lower-priority is not supported on this platform")
}
