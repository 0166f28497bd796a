//go:build !linux

package shm

import "context"

// MapRegion is only implemented on Linux.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is only implemented on Linux.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return nil
}
