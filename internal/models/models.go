// package models defines the data model for the flock sync agent
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GoldGeneration is the first generation number stored in the gold tier.
const GoldGeneration = 10000

// ContentItem describes one sheep from the remote catalog.
//
// Items are immutable once constructed from catalog data.
type ContentItem struct {
	ID         string `json:"id"`
	Generation int    `json:"generation"`
	First      int    `json:"first"`
	Last       int    `json:"last"`
	Size       *int64 `json:"size,omitempty"` // Expected byte size, if the catalog provided one
	URL        string `json:"url,omitempty"`  // Download locator, if the catalog provided one
}

// FullID returns the composite key "{generation}={id}={first}={last}".
func (c ContentItem) FullID() string {
	return fmt.Sprintf("%d=%s=%d=%d", c.Generation, c.ID, c.First, c.Last)
}

// IsGold reports whether the item belongs to the gold tier.
func (c ContentItem) IsGold() bool {
	return c.Generation >= GoldGeneration
}

// Tier returns the storage tier selected by the item's generation.
func (c ContentItem) Tier() Tier {
	if c.IsGold() {
		return TierGold
	}
	return TierFree
}

// Filename returns the on-disk name of the item within its tier.
func (c ContentItem) Filename() string {
	return c.baseName() + ".avi"
}

// StagingName returns the name used while a download is incomplete.
func (c ContentItem) StagingName() string {
	return c.baseName() + ".tmp"
}

func (c ContentItem) baseName() string {
	return fmt.Sprintf("%d_%s_%d_%d", c.Generation, c.ID, c.First, c.Last)
}

// reservedIDChars separate key fields in composite keys, file names and bus channels.
const reservedIDChars = "=_./\\ "

// Validate checks the frame range and identity.
func (c ContentItem) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("missing id")
	}
	if strings.ContainsAny(c.ID, reservedIDChars) {
		return fmt.Errorf("id %q contains a reserved character", c.ID)
	}
	if c.Last < c.First {
		return fmt.Errorf("last frame %d before first frame %d", c.Last, c.First)
	}
	return nil
}

// ParseFullID reconstructs the identity fields of an item from its composite key.
//
// Size and URL are not part of the key and are left empty.
func ParseFullID(fullID string) (ContentItem, error) {
	parts := strings.Split(fullID, "=")
	if len(parts) != 4 {
		return ContentItem{}, fmt.Errorf("malformed full id %q", fullID)
	}

	nums := make([]int, 0, 3)
	for _, p := range []string{parts[0], parts[2], parts[3]} {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ContentItem{}, fmt.Errorf("malformed full id %q: %w", fullID, err)
		}
		nums = append(nums, n)
	}

	item := ContentItem{ID: parts[1], Generation: nums[0], First: nums[1], Last: nums[2]}
	if err := item.Validate(); err != nil {
		return ContentItem{}, fmt.Errorf("malformed full id %q: %w", fullID, err)
	}
	return item, nil
}

// Tier is a partition of the content store.
type Tier string

const (
	TierFree Tier = "free"
	TierGold Tier = "gold"
)

// CacheEntry is a ContentItem persisted to the content store.
type CacheEntry struct {
	FullID       string
	Tier         Tier
	Path         string
	Size         int64
	LastAccessed time.Time // Zero if the consumer never reported playback
	Stats        *EntryStats
}

// EntryStats holds optional play and rating statistics for a cached entry.
type EntryStats struct {
	FullID       string
	DownloadedAt time.Time
	PlayCount    int
	LastPlayedAt *time.Time
	Rating       *int
}

// DownloadFailure records repeated failures to download one item.
type DownloadFailure struct {
	FullID        string
	Attempts      int
	LastError     string
	LastAttemptAt time.Time
}

// Direction is the direction of a user vote.
type Direction string

const (
	VoteUp   Direction = "up"
	VoteDown Direction = "down"
)

// Value returns the numeric vote value sent to the voting endpoint.
func (d Direction) Value() int {
	if d == VoteDown {
		return -1
	}
	return 1
}

// ParseDirection converts user input into a [Direction].
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "+", "+1", "1":
		return VoteUp, nil
	case "down", "-", "-1":
		return VoteDown, nil
	default:
		return "", fmt.Errorf("unknown vote direction %q", s)
	}
}

// DirectionOf maps a stored numeric vote back to a [Direction].
func DirectionOf(vote int) Direction {
	if vote > 0 {
		return VoteUp
	}
	return VoteDown
}

// VoteRecord is a vote that could not be submitted immediately.
type VoteRecord struct {
	SheepID   string    `json:"sheepID"`
	Vote      int       `json:"vote"` // 1 = up, -1 = down
	Timestamp time.Time `json:"timestamp"`
	Submitted bool      `json:"submitted"`
}

// NewVoteRecord creates an unsubmitted [VoteRecord] for the given sheep.
func NewVoteRecord(sheepID string, d Direction, at time.Time) VoteRecord {
	return VoteRecord{SheepID: sheepID, Vote: d.Value(), Timestamp: at}
}
