package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

const (
	sheepDir     = "sheep"
	stagingDir   = "downloads"
	listsDir     = "lists"
	metadataDir  = "metadata"
	playbackFile = "playback.json"
)

// Options configures a [Store].
type Options struct {
	Root         string                        // Cache root directory
	MinFreeBytes int64                         // Free space required by [Store.CheckHeadroom]
	Logger       *log.Logger                   // Defaults to [shared.NewLogger]
	OnCommit     func(item models.ContentItem) // Called after an item is committed
}

// Store is the tier-partitioned content cache rooted at a single directory.
//
// The access-timestamp map is owned by the store. Every read-modify-write of it
// and of playback.json happens under mu and the playback file lock.
type Store struct {
	root         string
	minFreeBytes int64
	logger       *log.Logger
	onCommit     func(models.ContentItem)
	freeBytes    func(path string) (int64, error)

	mu     sync.Mutex
	access map[string]time.Time
}

// New creates the directory layout under opts.Root and loads the access-timestamp map.
func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("%w: cache root", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	s := &Store{
		root:         opts.Root,
		minFreeBytes: opts.MinFreeBytes,
		logger:       shared.WithLogger(opts.Logger, "component", "store"),
		onCommit:     opts.OnCommit,
		freeBytes:    diskFree,
		access:       make(map[string]time.Time),
	}

	if err := s.EnsureLayout(); err != nil {
		return nil, err
	}
	if err := shared.ReadJSON(s.playbackPath(), &s.access); err != nil {
		s.logger.Warn("discarding unreadable playback map", "err", err)
		s.access = make(map[string]time.Time)
	}
	return s, nil
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

// SetOnCommit replaces the commit hook.
func (s *Store) SetOnCommit(fn func(models.ContentItem)) { s.onCommit = fn }

// EnsureLayout creates the tier, staging and list directories and an empty playback map.
func (s *Store) EnsureLayout() error {
	for _, dir := range []string{s.tierDir(models.TierFree), s.tierDir(models.TierGold), s.stagingDir(), s.ListsDir(), filepath.Join(s.root, metadataDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(s.playbackPath()); errors.Is(err, os.ErrNotExist) {
		if err := shared.WriteFileAtomic(s.playbackPath(), []byte("{}")); err != nil {
			return fmt.Errorf("failed to create playback map: %w", err)
		}
	}
	return nil
}

// Path returns the final location of item, inside the tier chosen by its generation.
func (s *Store) Path(item models.ContentItem) string {
	return filepath.Join(s.tierDir(item.Tier()), item.Filename())
}

// Stage returns the temporary write location used while item is downloading.
func (s *Store) Stage(item models.ContentItem) string {
	return filepath.Join(s.stagingDir(), item.StagingName())
}

// ListsDir returns the directory where raw catalog documents are kept.
func (s *Store) ListsDir() string {
	return filepath.Join(s.root, listsDir)
}

// Commit moves a fully written staging file into place, replacing any existing copy.
//
// On failure the staged file is removed and no final file is created.
func (s *Store) Commit(tempPath string, item models.ContentItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidItem, err)
	}

	final := s.Path(item)
	if err := os.Rename(tempPath, final); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to commit %s: %w", item.FullID(), err)
	}

	s.logger.Debug("committed", "id", item.FullID(), "tier", item.Tier())
	if s.onCommit != nil {
		s.onCommit(item)
	}
	return nil
}

// Discard removes a staging file, ignoring a missing file.
func (s *Store) Discard(tempPath string) {
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to discard staging file", "path", tempPath, "err", err)
	}
}

// ListEntries enumerates both tiers, reconstructing each entry's composite key from its file name.
//
// Files whose names do not parse are skipped.
func (s *Store) ListEntries() ([]models.CacheEntry, error) {
	all, err := s.scan()
	if err != nil {
		return nil, err
	}

	entries := make([]models.CacheEntry, 0, len(all))
	for _, e := range all {
		if e.FullID != "" {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// IDs returns the set of composite keys currently cached.
func (s *Store) IDs() (map[string]struct{}, error) {
	entries, err := s.ListEntries()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ids[e.FullID] = struct{}{}
	}
	return ids, nil
}

// Count returns the number of cached entries.
func (s *Store) Count() (int, error) {
	entries, err := s.ListEntries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// TotalSize returns the sum of file sizes across both tiers.
func (s *Store) TotalSize() (int64, error) {
	all, err := s.scan()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range all {
		total += e.Size
	}
	return total, nil
}

// Reset deletes both tiers and the access map, then recreates the layout.
func (s *Store) Reset() error {
	for _, tier := range []models.Tier{models.TierFree, models.TierGold} {
		if err := os.RemoveAll(s.tierDir(tier)); err != nil {
			return fmt.Errorf("failed to remove %s tier: %w", tier, err)
		}
	}

	err := s.updateAccess(func(access map[string]time.Time) bool {
		clear(access)
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to reset playback map: %w", err)
	}

	return s.EnsureLayout()
}

// scan lists regular files in the free tier then the gold tier, each in name order.
//
// Entries whose names do not parse have an empty FullID.
func (s *Store) scan() ([]models.CacheEntry, error) {
	access := s.AccessTimes()

	var out []models.CacheEntry
	for _, tier := range []models.Tier{models.TierFree, models.TierGold} {
		dir := s.tierDir(tier)
		files, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s tier: %w", tier, err)
		}

		for _, f := range files {
			if !f.Type().IsRegular() {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}

			fullID := fullIDFromName(f.Name())
			out = append(out, models.CacheEntry{
				FullID:       fullID,
				Tier:         tier,
				Path:         filepath.Join(dir, f.Name()),
				Size:         info.Size(),
				LastAccessed: access[fullID],
			})
		}
	}
	return out, nil
}

// fullIDFromName converts "248_12345_0_240.avi" into "248=12345=0=240".
func fullIDFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	fullID := strings.ReplaceAll(base, "_", "=")
	if _, err := models.ParseFullID(fullID); err != nil {
		return ""
	}
	return fullID
}

func (s *Store) tierDir(t models.Tier) string {
	return filepath.Join(s.root, sheepDir, string(t))
}

func (s *Store) stagingDir() string {
	return filepath.Join(s.root, stagingDir)
}

func (s *Store) playbackPath() string {
	return filepath.Join(s.root, playbackFile)
}

// SaveList keeps a copy of a raw catalog document under the lists directory.
func (s *Store) SaveList(name string, data []byte) error {
	if err := shared.WriteFileAtomic(filepath.Join(s.ListsDir(), filepath.Base(name)), data); err != nil {
		return fmt.Errorf("failed to save catalog list: %w", err)
	}
	return nil
}
