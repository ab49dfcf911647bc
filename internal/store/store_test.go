package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(Options{Root: t.TempDir(), MinFreeBytes: 1 << 30})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

// put writes size bytes to the final location of the item described by fullID.
func put(t *testing.T, s *Store, fullID string, size int) models.ContentItem {
	t.Helper()

	item, err := models.ParseFullID(fullID)
	if err != nil {
		t.Fatalf("bad full id %q: %v", fullID, err)
	}
	if err := os.WriteFile(s.Path(item), make([]byte, size), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", fullID, err)
	}
	return item
}

func fullIDs(entries []models.CacheEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.FullID)
	}
	return ids
}

func TestNew(t *testing.T) {
	t.Run("Creates Layout", func(t *testing.T) {
		s := newTestStore(t)

		for _, dir := range []string{"sheep/free", "sheep/gold", "downloads", "lists"} {
			info, err := os.Stat(filepath.Join(s.Root(), dir))
			if err != nil {
				t.Fatalf("expected %s to exist: %v", dir, err)
			}
			if !info.IsDir() {
				t.Errorf("expected %s to be a directory", dir)
			}
		}

		if _, err := os.Stat(filepath.Join(s.Root(), "playback.json")); err != nil {
			t.Errorf("expected playback.json to exist: %v", err)
		}
	})

	t.Run("Missing Root", func(t *testing.T) {
		_, err := New(Options{})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Corrupt Playback Map", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, "playback.json"), []byte("{not json"), 0644); err != nil {
			t.Fatalf("failed to write playback map: %v", err)
		}

		s, err := New(Options{Root: root})
		if err != nil {
			t.Fatalf("expected corrupt playback map to be discarded, got %v", err)
		}
		if len(s.AccessTimes()) != 0 {
			t.Errorf("expected empty access map, got %v", s.AccessTimes())
		}
	})
}

func TestPaths(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name    string
		item    models.ContentItem
		final   string
		staging string
	}{
		{
			name:    "Free Tier",
			item:    models.ContentItem{ID: "12345", Generation: 248, First: 0, Last: 240},
			final:   filepath.Join(s.Root(), "sheep", "free", "248_12345_0_240.avi"),
			staging: filepath.Join(s.Root(), "downloads", "248_12345_0_240.tmp"),
		},
		{
			name:    "Gold Boundary",
			item:    models.ContentItem{ID: "7", Generation: 10000, First: 1, Last: 2},
			final:   filepath.Join(s.Root(), "sheep", "gold", "10000_7_1_2.avi"),
			staging: filepath.Join(s.Root(), "downloads", "10000_7_1_2.tmp"),
		},
		{
			name:    "Below Gold Boundary",
			item:    models.ContentItem{ID: "7", Generation: 9999, First: 1, Last: 2},
			final:   filepath.Join(s.Root(), "sheep", "free", "9999_7_1_2.avi"),
			staging: filepath.Join(s.Root(), "downloads", "9999_7_1_2.tmp"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Path(tt.item); got != tt.final {
				t.Errorf("Path() = %s, want %s", got, tt.final)
			}
			if got := s.Stage(tt.item); got != tt.staging {
				t.Errorf("Stage() = %s, want %s", got, tt.staging)
			}
		})
	}
}

func TestCommit(t *testing.T) {
	item := models.ContentItem{ID: "12345", Generation: 248, First: 0, Last: 240}

	t.Run("Moves Staged File", func(t *testing.T) {
		s := newTestStore(t)

		var committed []string
		s.SetOnCommit(func(i models.ContentItem) { committed = append(committed, i.FullID()) })

		temp := s.Stage(item)
		if err := os.WriteFile(temp, []byte("sheep"), 0644); err != nil {
			t.Fatalf("failed to stage: %v", err)
		}

		if err := s.Commit(temp, item); err != nil {
			t.Fatalf("commit failed: %v", err)
		}

		data, err := os.ReadFile(s.Path(item))
		if err != nil {
			t.Fatalf("expected final file: %v", err)
		}
		if string(data) != "sheep" {
			t.Errorf("expected final contents 'sheep', got %q", data)
		}
		if _, err := os.Stat(temp); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected staging file to be gone, got %v", err)
		}
		if diff := cmp.Diff([]string{"248=12345=0=240"}, committed); diff != "" {
			t.Errorf("commit hook mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Replaces Existing File", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, item.FullID(), 100)

		temp := s.Stage(item)
		if err := os.WriteFile(temp, []byte("new"), 0644); err != nil {
			t.Fatalf("failed to stage: %v", err)
		}
		if err := s.Commit(temp, item); err != nil {
			t.Fatalf("commit failed: %v", err)
		}

		data, _ := os.ReadFile(s.Path(item))
		if string(data) != "new" {
			t.Errorf("expected replaced contents, got %d bytes", len(data))
		}
	})

	t.Run("Missing Staging File", func(t *testing.T) {
		s := newTestStore(t)
		called := false
		s.SetOnCommit(func(models.ContentItem) { called = true })

		err := s.Commit(s.Stage(item), item)
		if err == nil {
			t.Fatal("expected error for missing staging file")
		}
		if _, err := os.Stat(s.Path(item)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected no final file, got %v", err)
		}
		if called {
			t.Error("commit hook should not run on failure")
		}
	})

	t.Run("Failed Commit Keeps Existing Entry", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, item.FullID(), 100)

		if err := s.Commit(s.Stage(item), item); err == nil {
			t.Fatal("expected error for missing staging file")
		}
		info, err := os.Stat(s.Path(item))
		if err != nil {
			t.Fatalf("expected existing entry to survive: %v", err)
		}
		if info.Size() != 100 {
			t.Errorf("expected the original 100 bytes, got %d", info.Size())
		}
	})

	t.Run("Invalid Item", func(t *testing.T) {
		s := newTestStore(t)
		bad := models.ContentItem{ID: "1", Generation: 1, First: 10, Last: 2}

		if err := s.Commit(s.Stage(bad), bad); !errors.Is(err, shared.ErrInvalidItem) {
			t.Errorf("expected ErrInvalidItem, got %v", err)
		}
	})
}

func TestListEntries(t *testing.T) {
	s := newTestStore(t)

	put(t, s, "248=2=0=240", 10)
	put(t, s, "248=1=0=240", 20)
	put(t, s, "10001=9=5=6", 30)

	if err := os.WriteFile(filepath.Join(s.Root(), "sheep", "free", "notes.txt"), []byte("junk"), 0644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(s.Root(), "sheep", "free", "nested"), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	t.Run("Parses Names", func(t *testing.T) {
		entries, err := s.ListEntries()
		if err != nil {
			t.Fatalf("ListEntries failed: %v", err)
		}

		want := []string{"248=1=0=240", "248=2=0=240", "10001=9=5=6"}
		if diff := cmp.Diff(want, fullIDs(entries)); diff != "" {
			t.Errorf("entries mismatch (-want +got):\n%s", diff)
		}
		if entries[2].Tier != models.TierGold {
			t.Errorf("expected gold tier, got %s", entries[2].Tier)
		}
	})

	t.Run("IDs", func(t *testing.T) {
		ids, err := s.IDs()
		if err != nil {
			t.Fatalf("IDs failed: %v", err)
		}
		if _, ok := ids["10001=9=5=6"]; !ok {
			t.Errorf("expected gold entry in id set, got %v", ids)
		}
		if len(ids) != 3 {
			t.Errorf("expected 3 ids, got %d", len(ids))
		}
	})

	t.Run("TotalSize Includes Stray Files", func(t *testing.T) {
		total, err := s.TotalSize()
		if err != nil {
			t.Fatalf("TotalSize failed: %v", err)
		}
		if total != 64 {
			t.Errorf("expected 64 bytes, got %d", total)
		}
	})

	t.Run("Staging Files Are Not Entries", func(t *testing.T) {
		item := models.ContentItem{ID: "3", Generation: 248, First: 0, Last: 240}
		if err := os.WriteFile(s.Stage(item), []byte("partial"), 0644); err != nil {
			t.Fatalf("failed to stage: %v", err)
		}

		n, err := s.Count()
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 entries, got %d", n)
		}
	})
}

func TestEvict(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Oldest First", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, "1=a=0=1", 10)
		put(t, s, "1=b=0=1", 10)
		put(t, s, "1=c=0=1", 10)

		s.RecordAccess("1=a=0=1", base)
		s.RecordAccess("1=b=0=1", base.Add(time.Minute))
		s.RecordAccess("1=c=0=1", base.Add(2*time.Minute))

		removed, err := s.Evict(20)
		if err != nil {
			t.Fatalf("Evict failed: %v", err)
		}
		if diff := cmp.Diff([]string{"1=a=0=1"}, fullIDs(removed)); diff != "" {
			t.Errorf("removed mismatch (-want +got):\n%s", diff)
		}

		remaining, _ := s.ListEntries()
		if diff := cmp.Diff([]string{"1=b=0=1", "1=c=0=1"}, fullIDs(remaining)); diff != "" {
			t.Errorf("remaining mismatch (-want +got):\n%s", diff)
		}
		if _, ok := s.AccessTimes()["1=a=0=1"]; ok {
			t.Error("expected evicted entry to be dropped from access map")
		}
	})

	t.Run("Never Played First", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, "1=a=0=1", 10)
		put(t, s, "1=b=0=1", 10)
		put(t, s, "1=c=0=1", 10)

		s.RecordAccess("1=a=0=1", base)
		s.RecordAccess("1=c=0=1", base.Add(time.Minute))

		removed, err := s.Evict(20)
		if err != nil {
			t.Fatalf("Evict failed: %v", err)
		}
		if diff := cmp.Diff([]string{"1=b=0=1"}, fullIDs(removed)); diff != "" {
			t.Errorf("removed mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Ties Keep Enumeration Order", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, "1=a=0=1", 10)
		put(t, s, "1=b=0=1", 10)
		put(t, s, "10000=c=0=1", 10)

		removed, err := s.Evict(10)
		if err != nil {
			t.Fatalf("Evict failed: %v", err)
		}
		if diff := cmp.Diff([]string{"1=a=0=1", "1=b=0=1"}, fullIDs(removed)); diff != "" {
			t.Errorf("removed mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Within Budget", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, "1=a=0=1", 10)

		removed, err := s.Evict(10)
		if err != nil {
			t.Fatalf("Evict failed: %v", err)
		}
		if len(removed) != 0 {
			t.Errorf("expected nothing removed, got %v", fullIDs(removed))
		}
	})

	t.Run("Zero Budget Empties Cache", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, "1=a=0=1", 10)
		put(t, s, "10000=b=0=1", 10)

		if _, err := s.Evict(0); err != nil {
			t.Fatalf("Evict failed: %v", err)
		}
		total, _ := s.TotalSize()
		if total != 0 {
			t.Errorf("expected empty cache, got %d bytes", total)
		}
	})

	t.Run("Unparseable Files Go First", func(t *testing.T) {
		s := newTestStore(t)
		put(t, s, "1=a=0=1", 10)
		stray := filepath.Join(s.Root(), "sheep", "gold", "stray.bin")
		if err := os.WriteFile(stray, make([]byte, 10), 0644); err != nil {
			t.Fatalf("failed to write stray file: %v", err)
		}
		s.RecordAccess("1=a=0=1", base)

		if _, err := s.Evict(10); err != nil {
			t.Fatalf("Evict failed: %v", err)
		}
		if _, err := os.Stat(stray); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected stray file to be evicted, got %v", err)
		}
		if n, _ := s.Count(); n != 1 {
			t.Errorf("expected 1 entry left, got %d", n)
		}
	})
}

func TestRecordAccess(t *testing.T) {
	root := t.TempDir()
	when := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	s, err := New(Options{Root: root})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s.RecordAccess("248=1=0=240", when); err != nil {
		t.Fatalf("RecordAccess failed: %v", err)
	}

	reopened, err := New(Options{Root: root})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}

	got := reopened.AccessTimes()["248=1=0=240"]
	if !got.Equal(when) {
		t.Errorf("expected %v after reopen, got %v", when, got)
	}
}

func TestSharedPlaybackMap(t *testing.T) {
	when := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	open := func(t *testing.T, root string) *Store {
		t.Helper()
		s, err := New(Options{Root: root})
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		return s
	}

	t.Run("Merges Writers", func(t *testing.T) {
		root := t.TempDir()
		a, b := open(t, root), open(t, root)

		if err := a.RecordAccess("248=1=0=240", when); err != nil {
			t.Fatalf("RecordAccess failed: %v", err)
		}
		if err := b.RecordAccess("248=2=0=240", when); err != nil {
			t.Fatalf("RecordAccess failed: %v", err)
		}

		var onDisk map[string]time.Time
		if err := shared.ReadJSON(filepath.Join(root, "playback.json"), &onDisk); err != nil {
			t.Fatalf("failed to read playback map: %v", err)
		}
		if len(onDisk) != 2 {
			t.Errorf("expected both accesses persisted, got %v", onDisk)
		}
	})

	t.Run("Eviction Elsewhere Is Not Undone", func(t *testing.T) {
		root := t.TempDir()
		agent, cli := open(t, root), open(t, root)

		put(t, agent, "248=1=0=240", 10)
		if err := agent.RecordAccess("248=1=0=240", when); err != nil {
			t.Fatalf("RecordAccess failed: %v", err)
		}

		if _, err := cli.Evict(0); err != nil {
			t.Fatalf("Evict failed: %v", err)
		}
		if err := agent.RecordAccess("248=2=0=240", when); err != nil {
			t.Fatalf("RecordAccess failed: %v", err)
		}

		if diff := cmp.Diff(map[string]time.Time{"248=2=0=240": when}, open(t, root).AccessTimes()); diff != "" {
			t.Errorf("playback map mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Reset Elsewhere Is Not Undone", func(t *testing.T) {
		root := t.TempDir()
		agent, cli := open(t, root), open(t, root)

		agent.RecordAccess("248=1=0=240", when)
		if err := cli.Reset(); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		agent.RecordAccess("248=2=0=240", when)

		got := agent.AccessTimes()
		if _, ok := got["248=1=0=240"]; ok || len(got) != 1 {
			t.Errorf("expected only the new access, got %v", got)
		}
	})
}

func TestCheckHeadroom(t *testing.T) {
	tests := []struct {
		name    string
		free    int64
		statErr error
		wantErr bool
	}{
		{name: "Plenty", free: 2 << 30},
		{name: "Exactly Minimum", free: 1 << 30, wantErr: true},
		{name: "Below Minimum", free: 1024, wantErr: true},
		{name: "Stat Failure", statErr: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			s.freeBytes = func(string) (int64, error) { return tt.free, tt.statErr }

			err := s.CheckHeadroom()
			if tt.wantErr && !errors.Is(err, shared.ErrInsufficientStorage) {
				t.Errorf("expected ErrInsufficientStorage, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	put(t, s, "1=a=0=1", 10)
	put(t, s, "10000=b=0=1", 10)
	s.RecordAccess("1=a=0=1", time.Now())

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if n, _ := s.Count(); n != 0 {
		t.Errorf("expected empty cache, got %d entries", n)
	}
	if len(s.AccessTimes()) != 0 {
		t.Error("expected empty access map")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "sheep", "gold")); err != nil {
		t.Errorf("expected gold tier to be recreated: %v", err)
	}
}

func TestSaveList(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveList("list_free.xml", []byte("<list/>")); err != nil {
		t.Fatalf("SaveList failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.ListsDir(), "list_free.xml"))
	if err != nil {
		t.Fatalf("expected saved list: %v", err)
	}
	if string(data) != "<list/>" {
		t.Errorf("unexpected list contents %q", data)
	}
}
