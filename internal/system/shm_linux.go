//go:build linux

package system

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func (r *SharedCounterReader) openAndMap() error {
	if err := r.release(); err != nil {
		return fmt.Errorf("%w: release previous mapping of %s: %v", ErrSourceUnavailable, r.path, err)
	}
	if r.maxEntries <= 0 || r.recordSize <= 0 {
		return fmt.Errorf("%w: invalid geometry %d x %d for %s", ErrSourceUnavailable, r.maxEntries, r.recordSize, r.path)
	}

	length := r.recordSize * r.maxEntries
	size := mappedSize(length, os.Getpagesize())

	f, err := os.OpenFile(r.path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open device %s: %v", ErrSourceUnavailable, r.path, err)
	}
	// Device nodes report size 0. A regular file (replayed capture, tests) must
	// cover the record array, otherwise reads past EOF would fault.
	if st, statErr := f.Stat(); statErr == nil && st.Mode().IsRegular() && st.Size() < int64(length) {
		_ = f.Close()
		return fmt.Errorf("%w: %s holds %d bytes, need %d", ErrSourceUnavailable, r.path, st.Size(), length)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: mmap %s: %v", ErrSourceUnavailable, r.path, err)
	}

	r.file = f
	r.data = data
	r.scan()
	return nil
}

func (r *SharedCounterReader) release() error {
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", r.path, err))
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.path, err))
		}
		r.file = nil
	}
	r.validCount = 0
	r.cpuCount = 0
	return errors.Join(errs...)
}
