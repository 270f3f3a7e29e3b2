//go:build !linux

package system

import (
	"fmt"
	"runtime"
)

func (r *SharedCounterReader) openAndMap() error {
	return fmt.Errorf("%w: shared counter devices are not supported on %s", ErrSourceUnavailable, runtime.GOOS)
}

func (r *SharedCounterReader) release() error {
	r.data = nil
	r.file = nil
	r.validCount = 0
	r.cpuCount = 0
	return nil
}
