package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"scrapewatch/internal/util"
)

// DefaultFilename is used when no output path is configured.
const DefaultFilename = "equipment-trader-listings.csv"

// Header is the first row of every export.
var Header = []string{"Brand", "Model", "Condition", "Location", "Price", "URL"}

// ToDelimitedText renders records as CSV with every field quoted and
// embedded quotes doubled. The header row is unquoted. No records yields "".
func ToDelimitedText(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(Header, ","))
	for _, r := range records {
		b.WriteByte('\n')
		fields := [...]string{r.Brand, r.Model, r.Condition, r.Location, r.Price, r.URL}
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quote(f))
		}
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Export writes the CSV text for records to filename and returns the
// resolved path and the number of bytes written. An empty filename uses
// DefaultFilename; a bare name without extension gets ".csv".
func Export(records []Record, filename string) (string, int64, error) {
	path := resolvePath(filename)
	data := []byte(ToDelimitedText(records))
	if err := util.WriteFileAtomic(path, data); err != nil {
		return "", 0, fmt.Errorf("write %s: %w", path, err)
	}
	return path, int64(len(data)), nil
}

func resolvePath(filename string) string {
	if strings.TrimSpace(filename) == "" {
		return DefaultFilename
	}
	dir, base := filepath.Split(filename)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".csv"
	}
	name := util.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
	return filepath.Join(dir, name+ext)
}
