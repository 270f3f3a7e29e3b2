package system

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const DefaultProcRoot = "/proc"

// ProcFS reads the textual counter files under a proc root. Tests and
// containerised agents point it somewhere other than /proc.
type ProcFS struct {
	Root string
}

func NewProcFS(root string) ProcFS {
	if root == "" {
		root = DefaultProcRoot
	}
	return ProcFS{Root: root}
}

func (p ProcFS) path(elem ...string) string {
	return filepath.Join(append([]string{p.Root}, elem...)...)
}

func (p ProcFS) open(elem ...string) (*os.File, error) {
	path := p.path(elem...)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, path, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
