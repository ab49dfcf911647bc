package store

import (
	"fmt"

	"github.com/desertthunder/sheepd/internal/shared"
)

// AvailableBytes returns the free space on the volume holding the cache root.
func (s *Store) AvailableBytes() (int64, error) {
	free, err := s.freeBytes(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to stat volume: %w", err)
	}
	return free, nil
}

// CheckHeadroom returns [shared.ErrInsufficientStorage] when free space is at or below the configured minimum.
//
// A volume that cannot be inspected counts as full.
func (s *Store) CheckHeadroom() error {
	free, err := s.AvailableBytes()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInsufficientStorage, err)
	}
	if free <= s.minFreeBytes {
		return fmt.Errorf("%w: %d bytes free, %d required", shared.ErrInsufficientStorage, free, s.minFreeBytes)
	}
	return nil
}
