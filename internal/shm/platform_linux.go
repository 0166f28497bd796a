//go:build linux

package shm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, opts.Size)
	}
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		if !canCreateOnDevShm(uint64(opts.Size), opts.Path) {
			return nil, fmt.Errorf("%w: path=%s size=%d", ErrNoSpace, opts.Path, opts.Size)
		}
		//ignore mkdir error
		_ = os.MkdirAll(filepath.Dir(opts.Path), 0o700)
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(opts.Path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr:    addr,
		Path:    opts.Path,
		fd:      fd,
		created: opts.Create,
	}, nil
}

// UnmapRegion unmaps the region, closes its descriptor and removes the file
// if MapRegion created it.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if err := unix.Close(region.fd); err != nil {
		return fmt.Errorf("close fd %d: %w", region.fd, err)
	}
	if region.created {
		if err := os.Remove(region.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", region.Path, err)
		}
	}
	return nil
}
