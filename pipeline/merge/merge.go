// Package merge joins cleaned datasets on shared identifiers or URIs,
// embedding a summary of the related record into each primary record.
package merge

import (
	"context"
	"sort"

	"fablab-opendata/pipeline/record"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("fablab-opendata.pipeline.merge")

// Relation declares one foreign-key join from the primary dataset to a
// related cleaned record set.
type Relation struct {
	// Field is the foreign-key field on primary records, holding the
	// related entity's id or uri, e.g. "machine_id" or "machine_uri".
	Field string
	// Name keys the embedded summary on the output record, e.g. "machine".
	Name string
	// Index maps related-entity identifiers to their cleaned records.
	Index map[string]record.Record
	// Summary lists the related fields worth embedding. Only these are
	// copied; embedding whole records would re-duplicate data the related
	// dataset's own redaction already took care of.
	Summary []string
}

// Index builds a Relation lookup from a cleaned record set, keyed by the
// given field. Records without the field are left out.
func Index(records []record.Record, keyField string) map[string]record.Record {
	out := make(map[string]record.Record, len(records))
	for _, rec := range records {
		if key, ok := rec.Identity(keyField); ok {
			out[key] = rec
		}
	}
	return out
}

// Unresolved describes one foreign reference that found no related record.
// Suggestion holds the nearest known key by similarity when one is close
// enough to look like a slug typo; it feeds diagnostics, never the output
// data.
type Unresolved struct {
	Field      string
	Key        string
	Suggestion string
}

// Result is the merged dataset plus resolution diagnostics.
type Result struct {
	Records    []record.Record
	Unresolved []Unresolved
}

// UnresolvedCount reports how many foreign references failed to resolve.
func (r Result) UnresolvedCount() int {
	return len(r.Unresolved)
}

// Merge joins the primary dataset against each declared relation. The output
// has exactly one record per primary record, in primary order, whatever the
// resolution outcome: a resolved reference embeds the related summary under
// the relation's name, an unresolved one embeds an explicit nil and is
// reported in Result.Unresolved. Primary records without the foreign-key
// field carry no reference and are passed through untouched.
func Merge(ctx context.Context, primary []record.Record, relations []Relation) Result {
	_, span := tracer.Start(ctx, "Merge")
	defer span.End()

	result := Result{Records: make([]record.Record, 0, len(primary))}

	for _, rec := range primary {
		merged := rec.Clone()
		for _, relation := range relations {
			key, ok := rec.Identity(relation.Field)
			if !ok {
				continue
			}

			related, found := relation.Index[key]
			if !found {
				merged[relation.Name] = nil
				result.Unresolved = append(result.Unresolved, Unresolved{
					Field:      relation.Field,
					Key:        key,
					Suggestion: nearestKey(key, relation.Index),
				})
				continue
			}

			summary := record.Record{}
			for _, name := range relation.Summary {
				if value, ok := related[name]; ok {
					summary[name] = value
				}
			}
			merged[relation.Name] = map[string]any(summary)
		}
		result.Records = append(result.Records, merged)
	}

	span.SetAttributes(
		attribute.Int("primary_records", len(primary)),
		attribute.Int("unresolved", len(result.Unresolved)),
	)
	return result
}

// similarity below which a nearest key is considered noise rather than a
// plausible typo
const suggestionThreshold = 0.9

func nearestKey(key string, index map[string]record.Record) string {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := ""
	bestScore := 0.0
	for _, candidate := range keys {
		score := matchr.JaroWinkler(key, candidate, false)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if bestScore < suggestionThreshold {
		return ""
	}
	return best
}
