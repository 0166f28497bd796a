// Package shm maps file-backed shared memory regions used as frame pool storage.
package shm

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

const devShm = "/dev/shm"

var (
	ErrUnsupported = errors.New("shm: shared memory regions are not supported on this platform")
	ErrNoSpace     = errors.New("shm: not enough free space left on /dev/shm")
	ErrInvalidSize = errors.New("shm: invalid region size")
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr    []byte
	Path    string
	fd      int
	created bool
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Path string
	Size int
	// Create truncates the file to Size; the file is removed again on Unmap.
	Create bool
}

// canCreateOnDevShm only checks free space for paths under /dev/shm; other
// locations always pass.
func canCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(filepath.Clean(path), devShm+"/") {
		return true
	}
	stat, err := disk.Usage(devShm)
	if err != nil {
		return false
	}
	return stat.Free >= size
}
