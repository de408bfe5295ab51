// Package export writes cleaned datasets to disk as JSON documents with a
// provenance metadata block and a timestamped filename.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"fablab-opendata/pipeline/record"
)

// timestampLayout is the suffix appended to every export filename,
// e.g. machines_30_08_2026_14-05.json.
const timestampLayout = "02_01_2006_15-04"

// Provenance describes who published a dataset and under which terms. It
// becomes the metadata block of every exported document.
type Provenance struct {
	DataOwner   string `json:"data_owner,omitempty"`
	DataSteward string `json:"data_steward,omitempty"`
	DataCurator string `json:"data_curator,omitempty"`
	License     string `json:"license,omitempty"`
	// ExportedFrom is the base URL of the source instance.
	ExportedFrom string `json:"exported_from,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
}

// Metadata renders the provenance as a record with the export time stamped
// in.
func (p Provenance) Metadata(exportedAt time.Time) record.Record {
	meta := record.Record{
		"exported_at": exportedAt.Format(time.RFC3339),
	}
	set := func(key, value string) {
		if value != "" {
			meta[key] = value
		}
	}
	set("data_owner", p.DataOwner)
	set("data_steward", p.DataSteward)
	set("data_curator", p.DataCurator)
	set("license", p.License)
	set("exported_from", p.ExportedFrom)
	set("timezone", p.Timezone)
	return meta
}

// Filename builds "<name>_<timestamp>.json" from a dataset name, with
// characters unsafe for filenames replaced.
func Filename(name string, at time.Time) string {
	return fmt.Sprintf("%s_%s.json", SanitizeFilename(name), at.Format(timestampLayout))
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFilename replaces everything outside [a-zA-Z0-9._-] with
// underscores and trims leading/trailing separators.
func SanitizeFilename(name string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, "._-")
	if sanitized == "" {
		return "export"
	}
	return sanitized
}

// TimestampFromFilename recovers the export time encoded in a filename
// produced by Filename.
func TimestampFromFilename(filename string) (time.Time, error) {
	base := strings.TrimSuffix(filepath.Base(filename), ".json")

	parts := strings.Split(base, "_")
	if len(parts) < 4 {
		return time.Time{}, fmt.Errorf("no timestamp in filename %q", filename)
	}
	stamp := strings.Join(parts[len(parts)-4:], "_")

	at, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("no timestamp in filename %q: %w", filename, err)
	}
	return at, nil
}

// WriteJSON marshals a document and writes it to <dir>/<name>_<timestamp>.json,
// returning the path written. Line separator characters that break JSON
// consumers (U+2028, U+2029) are normalized to newlines first.
func WriteJSON(dir, name string, at time.Time, document any) (string, error) {
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	encoded = normalizeLineSeparators(encoded)
	encoded = append(encoded, '\n')

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	path := filepath.Join(dir, Filename(name, at))
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	slog.Info("wrote export", "path", path, "bytes", len(encoded))
	return path, nil
}

// encoding/json escapes U+2028/U+2029 for JS embedding, so after marshaling
// the separators only ever appear as their escape sequences.
func normalizeLineSeparators(data []byte) []byte {
	replaced := strings.NewReplacer(
		`\u2028`, `\n`,
		`\u2029`, `\n`,
	).Replace(string(data))
	return []byte(replaced)
}
