package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fablab-opendata/pipeline/record"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestProvenanceMetadata(t *testing.T) {
	at := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)
	meta := Provenance{
		DataOwner:    "Fab Lab Example",
		License:      "CC-BY-4.0",
		ExportedFrom: "https://fab.example.org",
		Timezone:     "Europe/Berlin",
	}.Metadata(at)

	want := record.Record{
		"data_owner":    "Fab Lab Example",
		"license":       "CC-BY-4.0",
		"exported_from": "https://fab.example.org",
		"timezone":      "Europe/Berlin",
		"exported_at":   "2026-08-30T14:05:00Z",
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeFilename(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
	}{
		{"machines", "machines"},
		{"machine reservations", "machine_reservations"},
		{"../../etc/passwd", "etc_passwd"},
		{"über laser!", "ber_laser"},
		{"", "export"},
		{"///", "export"},
	} {
		require.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)

	filename := Filename("machine reservations", at)
	require.Equal(t, "machine_reservations_30_08_2026_14-05.json", filename)

	recovered, err := TimestampFromFilename(filename)
	require.NoError(t, err)
	require.True(t, at.Equal(recovered))

	_, err = TimestampFromFilename("machines.json")
	require.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)

	document := map[string]any{
		"data": map[string][]record.Record{
			"machines": {{"id": 1, "name": "Laser Cutter", "description": "line one line two"}},
		},
	}

	path, err := WriteJSON(dir, "machines", at, document)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "machines_30_08_2026_14-05.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// the marshaler escapes the separators, so the file must carry neither
	// the raw runes nor their escape sequences
	require.NotContains(t, string(raw), "\u2028")
	require.NotContains(t, string(raw), "\u2029")
	require.NotContains(t, string(raw), "\\u2028")
	require.NotContains(t, string(raw), "\\u2029")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	machines := decoded["data"].(map[string]any)["machines"].([]any)
	require.Len(t, machines, 1)
	require.Equal(t, "line one\nline two", machines[0].(map[string]any)["description"])
}
