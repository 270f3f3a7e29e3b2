package system

import (
	"fmt"
	"os"
	"strings"
)

// SharedCounterReader maps a counter device exposed by the kernel module and
// reads its fixed-size records in place.
//
// Reads from several goroutines are safe. Refresh and Close rebuild or drop
// the mapping and must not run concurrently with readers. A reader must not
// be copied after OpenSharedCounters returns it.
type SharedCounterReader struct {
	path       string
	maxEntries int
	recordSize int

	file       *os.File
	data       []byte
	validCount int
	cpuCount   int
}

// OpenSharedCounters opens path read-only and maps maxEntries records of
// recordSize bytes. Failures wrap ErrSourceUnavailable; the usual cause is
// that the kernel module is not loaded.
func OpenSharedCounters(path string, maxEntries, recordSize int) (*SharedCounterReader, error) {
	r := &SharedCounterReader{path: path, maxEntries: maxEntries, recordSize: recordSize}
	if err := r.openAndMap(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SharedCounterReader) Path() string { return r.path }

func (r *SharedCounterReader) RecordSize() int { return r.recordSize }

// Valid reports whether the device is currently mapped.
func (r *SharedCounterReader) Valid() bool { return r != nil && r.data != nil }

// Data exposes the mapped bytes. The slice is backed by a read-only mapping:
// writing to it faults.
func (r *SharedCounterReader) Data() []byte { return r.data }

// ValidCount is the index of the sentinel record found by the last scan.
func (r *SharedCounterReader) ValidCount() int { return r.validCount }

// CPUCount is the number of aggregate "cpu" rows inside the valid range.
func (r *SharedCounterReader) CPUCount() int { return r.cpuCount }

// Record returns the bytes of record i. The index is checked against both
// the valid range and the mapping length before any byte is touched.
func (r *SharedCounterReader) Record(i int) ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %s is not mapped", ErrSourceUnavailable, r.path)
	}
	if i < 0 || i >= r.validCount {
		return nil, fmt.Errorf("%w: index %d outside valid range [0,%d)", ErrMalformedRecord, i, r.validCount)
	}
	off := i * r.recordSize
	if off+r.recordSize > len(r.data) {
		return nil, fmt.Errorf("%w: record %d ends past mapping of %d bytes", ErrMalformedRecord, i, len(r.data))
	}
	return r.data[off : off+r.recordSize : off+r.recordSize], nil
}

// Refresh drops the current mapping and maps the device again.
func (r *SharedCounterReader) Refresh() error {
	return r.openAndMap()
}

// Close unmaps the device and closes its descriptor. Extra calls are no-ops.
func (r *SharedCounterReader) Close() error {
	if r == nil {
		return nil
	}
	return r.release()
}

// scan counts records up to the first sentinel.
func (r *SharedCounterReader) scan() {
	r.validCount = 0
	r.cpuCount = 0
	for i := 0; i < r.maxEntries; i++ {
		off := i * r.recordSize
		if off+r.recordSize > len(r.data) {
			break
		}
		rec := r.data[off : off+r.recordSize]
		if IsSentinel(rec) {
			break
		}
		r.validCount++
		name := recordName(rec[:min(RecordNameSize, len(rec))])
		if IsAggregateName(name) && strings.HasPrefix(name, "cpu") {
			r.cpuCount++
		}
	}
}

func mappedSize(length, pageSize int) int {
	if pageSize <= 0 {
		return length
	}
	return ((length + pageSize - 1) / pageSize) * pageSize
}
