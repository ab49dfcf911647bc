package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
	th "github.com/desertthunder/sheepd/internal/testing"
)

func testEntries() []models.CacheEntry {
	rating := 1
	played := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []models.CacheEntry{
		{
			FullID:       "248=1001=0=240",
			Tier:         models.TierFree,
			Size:         1536,
			LastAccessed: played,
			Stats:        &models.EntryStats{FullID: "248=1001=0=240", PlayCount: 4, Rating: &rating},
		},
		{
			FullID: "10001=7=0=120",
			Tier:   models.TierGold,
			Size:   2 << 20,
		},
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{2 << 20, "2.0 MiB"},
		{1 << 30, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExporters(t *testing.T) {
	entries := testEntries()

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(entries)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "FullID,Tier,Size,LastAccessed,PlayCount,Rating") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "248=1001=0=240,free,1536,2025-06-01T12:00:00Z,4,1") {
			t.Errorf("CSV missing free entry, got: %s", output)
		}
		if !strings.Contains(output, "10001=7=0=120,gold,2097152,,0,") {
			t.Errorf("CSV missing gold entry, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(entries)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{"# Cache", "**Entries**: 2", "## Free", "## Gold", "| 10001=7=0=120 | 2.0 MiB | never | 0 |"} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown Skips Empty Tier", func(t *testing.T) {
		data, _ := ExportToMarkdown(entries[:1])
		if strings.Contains(string(data), "## Gold") {
			t.Error("empty tier should not get a section")
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(entries)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Entries: 2") || !strings.Contains(output, "1. 248=1001=0=240 [free] 1.5 KiB") {
			t.Errorf("unexpected text output:\n%s", output)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(entries)
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var decoded []map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(decoded))
		}
		if decoded[0]["rating"] != float64(1) || decoded[0]["play_count"] != float64(4) {
			t.Errorf("unexpected first entry %v", decoded[0])
		}
		if _, ok := decoded[1]["last_accessed"]; ok {
			t.Error("never-played entry should omit last_accessed")
		}
	})

	t.Run("Export Unknown Format", func(t *testing.T) {
		if _, err := Export(entries, "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("Writes File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.csv")
		got, err := WriteExport(testEntries(), "csv", path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}

		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "FullID,") {
			t.Errorf("unexpected file content %q", content)
		}
	})

	t.Run("Default Name", func(t *testing.T) {
		t.Chdir(t.TempDir())

		got, err := WriteExport(testEntries(), "JSON", "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != "cache.json" {
			t.Errorf("expected cache.json, got %s", got)
		}
		th.AssertFileExists(t, got)
	})

	t.Run("Unwritable Path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "dir", "cache.txt")
		if _, err := WriteExport(testEntries(), "txt", path); err == nil {
			t.Error("expected error for missing directory")
		}
	})
}
