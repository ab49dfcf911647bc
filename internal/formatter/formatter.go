// package formatter renders cache listings as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

// Formats lists the supported export formats.
var Formats = []string{"csv", "markdown", "txt", "json"}

// FormatBytes renders n using binary units, e.g. "1.5 GiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func playCount(e models.CacheEntry) int {
	if e.Stats == nil {
		return 0
	}
	return e.Stats.PlayCount
}

func rating(e models.CacheEntry) string {
	if e.Stats == nil || e.Stats.Rating == nil {
		return ""
	}
	return strconv.Itoa(*e.Stats.Rating)
}

// ExportToCSV converts cache entries to CSV with columns: FullID, Tier, Size, LastAccessed, PlayCount, Rating
func ExportToCSV(entries []models.CacheEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"FullID", "Tier", "Size", "LastAccessed", "PlayCount", "Rating"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.FullID,
			string(e.Tier),
			strconv.FormatInt(e.Size, 10),
			formatTime(e.LastAccessed),
			strconv.Itoa(playCount(e)),
			rating(e),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts cache entries to a Markdown table grouped by tier
func ExportToMarkdown(entries []models.CacheEntry) ([]byte, error) {
	var buf bytes.Buffer

	var total int64
	for _, e := range entries {
		total += e.Size
	}

	buf.WriteString("# Cache\n\n")
	buf.WriteString(fmt.Sprintf("**Entries**: %d\n", len(entries)))
	buf.WriteString(fmt.Sprintf("**Size**: %s\n\n", FormatBytes(total)))

	for _, tier := range []models.Tier{models.TierFree, models.TierGold} {
		var rows []models.CacheEntry
		for _, e := range entries {
			if e.Tier == tier {
				rows = append(rows, e)
			}
		}
		if len(rows) == 0 {
			continue
		}

		buf.WriteString(fmt.Sprintf("## %s\n\n", strings.ToUpper(string(tier[:1]))+string(tier[1:])))
		buf.WriteString("| Sheep | Size | Last played | Plays |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, e := range rows {
			last := formatTime(e.LastAccessed)
			if last == "" {
				last = "never"
			}
			buf.WriteString(fmt.Sprintf("| %s | %s | %s | %d |\n", e.FullID, FormatBytes(e.Size), last, playCount(e)))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts cache entries to plain text, one per line
func ExportToText(entries []models.CacheEntry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Entries: %d\n\n", len(entries)))
	for i, e := range entries {
		buf.WriteString(fmt.Sprintf("%d. %s [%s] %s\n", i+1, e.FullID, e.Tier, FormatBytes(e.Size)))
	}

	return buf.Bytes(), nil
}

type jsonEntry struct {
	FullID       string     `json:"full_id"`
	Tier         string     `json:"tier"`
	Size         int64      `json:"size"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	PlayCount    int        `json:"play_count"`
	Rating       *int       `json:"rating,omitempty"`
}

// ExportToJSON converts cache entries to an indented JSON array
func ExportToJSON(entries []models.CacheEntry) ([]byte, error) {
	out := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		je := jsonEntry{FullID: e.FullID, Tier: string(e.Tier), Size: e.Size, PlayCount: playCount(e)}
		if !e.LastAccessed.IsZero() {
			t := e.LastAccessed.UTC()
			je.LastAccessed = &t
		}
		if e.Stats != nil {
			je.Rating = e.Stats.Rating
		}
		out = append(out, je)
	}
	return shared.MarshalJSON(out, true)
}

// Export renders entries in the named format.
func Export(entries []models.CacheEntry, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "csv":
		return ExportToCSV(entries)
	case "markdown", "md":
		return ExportToMarkdown(entries)
	case "txt", "text":
		return ExportToText(entries)
	case "json":
		return ExportToJSON(entries)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// WriteExport renders entries and atomically writes them to path.
//
// Defaults to cache.{format} as the filename.
func WriteExport(entries []models.CacheEntry, format, path string) (string, error) {
	data, err := Export(entries, format)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = "cache." + strings.ToLower(format)
	}
	if err := shared.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
