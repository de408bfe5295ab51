package clean

import (
	"context"
	"testing"

	"fablab-opendata/pipeline/anonymize"
	"fablab-opendata/pipeline/record"
	"fablab-opendata/pipeline/redact"

	"github.com/stretchr/testify/require"
)

const namespace = "https://fab.example.org"

func TestCleanReservationFullMode(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityReservationMachine,
		Mode:       anonymize.ModeFull,
		Namespace:  namespace,
	})
	require.NoError(t, err)

	raws := []record.Record{{
		"id":         float64(42),
		"user_email": "a@b.com",
		"machine_id": float64(7),
		"date":       "2025-01-01",
	}}

	cleaned, summary := cleaner.Clean(context.Background(), raws)
	require.Equal(t, 1, summary.Processed)
	require.Len(t, cleaned, 1)

	rec := cleaned[0]
	require.NotContains(t, rec, "user_email")
	require.NotContains(t, rec, redact.PseudonymField)
	require.Equal(t, "2025-01-01", rec["date"])
	require.Equal(t, namespace+"/reservation/42", rec["uri"])
}

func TestCleanReservationPseudoMode(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityReservationMachine,
		Mode:       anonymize.ModePseudo,
		Key:        "k1",
		Namespace:  namespace,
	})
	require.NoError(t, err)

	raws := []record.Record{
		{"id": float64(42), "user_email": "a@b.com", "machine_id": float64(7), "date": "2025-01-01"},
		{"id": float64(57), "user_email": "a@b.com", "machine_id": float64(2), "date": "2025-02-11"},
		{"id": float64(58), "user_email": "c@d.com", "machine_id": float64(2), "date": "2025-02-12"},
	}

	cleaned, summary := cleaner.Clean(context.Background(), raws)
	require.Equal(t, 3, summary.Processed)

	expected, err := anonymize.Pseudonymize("a@b.com", "k1")
	require.NoError(t, err)
	require.Equal(t, expected, cleaned[0][redact.PseudonymField])
	// same subject, different reservation: pseudonyms correlate
	require.Equal(t, cleaned[0][redact.PseudonymField], cleaned[1][redact.PseudonymField])
	require.NotEqual(t, cleaned[0][redact.PseudonymField], cleaned[2][redact.PseudonymField])
}

func TestCleanNestedReservationPayload(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityReservationMachine,
		Mode:       anonymize.ModeFull,
		Namespace:  namespace,
	})
	require.NoError(t, err)

	raws := []record.Record{{
		"id":              float64(101),
		"reservable_type": "Machine",
		"created_at":      "2025-01-01T09:00:00Z",
		"user": map[string]any{
			"email": "a@b.com",
			"group": map[string]any{"name": "Student"},
		},
		"reservable": map[string]any{"id": float64(7), "slug": "laser-cutter"},
		"reserved_slots": []any{
			map[string]any{
				"canceled_at": nil,
				"start_at":    "2025-01-01T10:00:00.000+01:00",
				"end_at":      "2025-01-01T11:30:00.000+01:00",
			},
			map[string]any{
				"canceled_at": nil,
				"start_at":    "2025-01-02T10:00:00.000+01:00",
				"end_at":      "2025-01-02T10:30:00.000+01:00",
			},
		},
	}}

	cleaned, summary := cleaner.Clean(context.Background(), raws)
	require.Equal(t, 1, summary.Processed)

	rec := cleaned[0]
	require.Equal(t, "Student", rec["user_group"])
	require.Equal(t, int64(7), rec["machine_id"])
	require.Equal(t, namespace+"/machine/laser-cutter", rec["machine_uri"])
	require.Equal(t, "2025-01-01", rec["booking_date"])
	require.Equal(t, false, rec["canceled"])
	require.Equal(t, 2.0, rec["time_spent_hours"])
	require.Equal(t, namespace+"/reservation/101", rec["uri"])
	require.NotContains(t, rec, "user_email")
}

func TestCleanFiltersWrongReservableType(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityReservationMachine,
		Mode:       anonymize.ModeFull,
		Namespace:  namespace,
	})
	require.NoError(t, err)

	raws := []record.Record{
		{"id": float64(1), "reservable_type": "Training"},
		{"id": float64(2), "reservable_type": "Machine", "date": "2025-01-01"},
	}

	cleaned, summary := cleaner.Clean(context.Background(), raws)
	require.Len(t, cleaned, 1)
	require.Equal(t, 1, summary.Filtered)
	require.Equal(t, 1, summary.Reasons["reservable_type"])
	require.Equal(t, namespace+"/reservation/2", cleaned[0]["uri"])
}

func TestCleanMachines(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityMachine,
		Mode:       anonymize.ModeFull,
		Namespace:  namespace,
		Timestamps: redact.TimestampDateOnly,
	})
	require.NoError(t, err)

	raws := []record.Record{
		{
			"id":          float64(1),
			"slug":        "laser-cutter",
			"name":        "Laser Cutter",
			"description": "<p>Great <b>laser</b> cutter</p>",
			"disabled":    false,
			"created_at":  "2025-01-01T00:00:00Z",
		},
		{
			"id":       float64(2),
			"slug":     "broken-mill",
			"name":     "Broken Mill",
			"disabled": true,
		},
	}

	cleaned, summary := cleaner.Clean(context.Background(), raws)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Filtered)
	require.Equal(t, 1, summary.Reasons["disabled"])

	rec := cleaned[0]
	require.Equal(t, "Great laser cutter", rec["description"])
	require.Equal(t, "2025-01-01", rec["created_at"])
	require.Equal(t, namespace+"/machine/laser-cutter", rec["uri"])
	require.NotContains(t, rec, "id")
	require.NotContains(t, rec, "slug")
	require.NotContains(t, rec, "disabled")
}

func TestCleanIncludeDisabledKeepsFlag(t *testing.T) {
	cleaner, err := New(Options{
		EntityType:      redact.EntityMachine,
		Mode:            anonymize.ModeFull,
		Namespace:       namespace,
		IncludeDisabled: true,
	})
	require.NoError(t, err)

	cleaned, summary := cleaner.Clean(context.Background(), []record.Record{
		{"id": float64(2), "slug": "broken-mill", "name": "Broken Mill", "disabled": true},
	})
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, true, cleaned[0]["disabled"])
}

func TestCleanIsolatesBadRecords(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityReservationMachine,
		Mode:       anonymize.ModePseudo,
		Key:        "k1",
		Namespace:  namespace,
	})
	require.NoError(t, err)

	raws := []record.Record{
		{"id": float64(1), "user_email": "a@b.com", "date": "2025-01-01"},
		{"date": "2025-01-02"}, // no reservation id
		{"id": float64(3), "date": "2025-01-03"}, // no subject identifier
		{"id": float64(4), "user_email": "c@d.com", "date": "2025-01-04"},
	}

	cleaned, summary := cleaner.Clean(context.Background(), raws)
	require.Equal(t, 2, summary.Processed)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 2, summary.Reasons["missing_identifier"])

	// order preserved, failures absent
	require.Equal(t, namespace+"/reservation/1", cleaned[0]["uri"])
	require.Equal(t, namespace+"/reservation/4", cleaned[1]["uri"])
}

func TestCleanUnknownFieldsReported(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityMachine,
		Mode:       anonymize.ModeFull,
		Namespace:  namespace,
	})
	require.NoError(t, err)

	cleaned, summary := cleaner.Clean(context.Background(), []record.Record{
		{"id": float64(1), "slug": "a", "name": "A", "vendor_extra": "x"},
		{"id": float64(2), "slug": "b", "name": "B", "vendor_extra": "y"},
	})
	require.Len(t, cleaned, 2)
	require.Equal(t, 2, summary.UnknownFields["vendor_extra"])
	for _, rec := range cleaned {
		require.NotContains(t, rec, "vendor_extra")
	}
}

func TestCleanUsersHaveNoURI(t *testing.T) {
	cleaner, err := New(Options{
		EntityType: redact.EntityUser,
		Mode:       anonymize.ModePseudo,
		Key:        "k1",
	})
	require.NoError(t, err)

	cleaned, summary := cleaner.Clean(context.Background(), []record.Record{{
		"id":         float64(9),
		"email":      "a@b.com",
		"first_name": "Ada",
		"group":      map[string]any{"name": "Student"},
		"created_at": "2024-06-01T00:00:00Z",
	}})
	require.Equal(t, 1, summary.Processed)

	rec := cleaned[0]
	require.NotContains(t, rec, "uri")
	require.NotContains(t, rec, "email")
	require.NotContains(t, rec, "first_name")
	require.Equal(t, "Student", rec["user_group"])
	expected, _ := anonymize.Pseudonymize("a@b.com", "k1")
	require.Equal(t, expected, rec[redact.PseudonymField])
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{EntityType: "unknown", Mode: anonymize.ModeFull})
	require.Error(t, err)

	_, err = New(Options{EntityType: redact.EntityMachine, Mode: "partial"})
	require.Error(t, err)

	_, err = New(Options{EntityType: redact.EntityMachine, Mode: anonymize.ModePseudo, Namespace: namespace})
	require.Error(t, err, "pseudo mode without key")

	_, err = New(Options{EntityType: redact.EntityMachine, Mode: anonymize.ModeFull})
	require.Error(t, err, "machine cleaning without namespace")
}
