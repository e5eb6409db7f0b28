//go:build unix

package checks

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// lowerPriorityNice is the niceness applied by LowerPriority.
const lowerPriorityNice = 10

// LowerPriority renices the calling process so checks yield to the host.
func LowerPriority() error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, lowerPriorityNice); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}
	return nil
}
