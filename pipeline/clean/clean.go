// Package clean orchestrates the per-entity cleaning pipeline: filter raw
// records, flatten nested payloads, redact against the entity schema,
// sanitize free text and attach linked-data URIs.
//
// One Cleaner handles one entity type in one anonymization mode; the mode,
// key and namespace are fixed at construction so a batch can never mix
// privacy guarantees. Cleaning is pure: no network, no files, no shared
// state, so concurrent runs with different keys cannot interfere.
package clean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fablab-opendata/pipeline/anonymize"
	"fablab-opendata/pipeline/record"
	"fablab-opendata/pipeline/redact"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("fablab-opendata.pipeline.clean")

// Options fix the parameters of one cleaning run. Everything is explicit;
// there is no process-wide configuration to fall back on.
type Options struct {
	EntityType string
	Mode       anonymize.Mode
	// Key is the pseudonym secret, required in pseudo mode. It is only
	// ever fed to the HMAC; nothing logs it.
	Key string
	// Namespace is the URI prefix for linked-data identifiers, e.g.
	// "https://fab.example.org".
	Namespace string
	// Timestamps generalizes created_at/updated_at fields. Defaults to
	// TimestampAll.
	Timestamps redact.TimestampMode
	// IncludeDisabled keeps machines/trainings flagged disabled. When
	// false those records are filtered and the disabled flag itself is
	// removed from the survivors.
	IncludeDisabled bool
	// Schema overrides the built-in schema for the entity type.
	Schema *redact.Schema
}

// Summary reports what happened to a batch. Per-record failures never abort
// the run; they are counted here for the caller to act on.
type Summary struct {
	Processed int
	Skipped   int
	Filtered  int
	// Reasons counts skip and filter causes by name.
	Reasons map[string]int
	// UnknownFields counts occurrences of fields absent from the schema,
	// dropped fail-safe. Persistent entries mean the schema needs updating.
	UnknownFields map[string]int
}

func (s *Summary) reason(name string) {
	if s.Reasons == nil {
		s.Reasons = map[string]int{}
	}
	s.Reasons[name]++
}

func (s *Summary) unknown(fields []string) {
	if len(fields) == 0 {
		return
	}
	if s.UnknownFields == nil {
		s.UnknownFields = map[string]int{}
	}
	for _, name := range fields {
		s.UnknownFields[name]++
	}
}

// Cleaner transforms raw records of one entity type into cleaned records.
type Cleaner struct {
	opts   Options
	schema redact.Schema
	entity entitySpec
}

// New validates the options and resolves the entity behavior and schema.
func New(opts Options) (*Cleaner, error) {
	entity, ok := entitySpecs[opts.EntityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", opts.EntityType)
	}

	if _, err := anonymize.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Mode == anonymize.ModePseudo && opts.Key == "" {
		return nil, fmt.Errorf("pseudonym key is required in %q mode", anonymize.ModePseudo)
	}
	if opts.Timestamps == "" {
		opts.Timestamps = redact.TimestampAll
	}
	if _, err := redact.ParseTimestampMode(string(opts.Timestamps)); err != nil {
		return nil, err
	}
	if entity.attachURI && opts.Namespace == "" {
		return nil, fmt.Errorf("a base namespace is required to build %s uris", opts.EntityType)
	}

	schema, _ := redact.SchemaFor(opts.EntityType)
	if opts.Schema != nil {
		schema = *opts.Schema
	}

	return &Cleaner{opts: opts, schema: schema, entity: entity}, nil
}

// Clean processes a batch. Output order follows input order; filtered records
// are simply absent. A record that cannot be cleaned (missing identifier,
// malformed payload) is skipped and counted, and the rest of the batch
// continues.
func (c *Cleaner) Clean(ctx context.Context, raws []record.Record) ([]record.Record, Summary) {
	ctx, span := tracer.Start(ctx, "Clean")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity_type", c.opts.EntityType),
		attribute.String("mode", string(c.opts.Mode)),
		attribute.Int("input_records", len(raws)),
	)

	redactOpts := redact.Options{
		Mode:       c.opts.Mode,
		Key:        c.opts.Key,
		Timestamps: c.opts.Timestamps,
	}

	var out []record.Record
	var summary Summary

	for _, raw := range raws {
		if keep, reason := c.entity.filter(raw, c.opts); !keep {
			summary.Filtered++
			summary.reason(reason)
			continue
		}

		flat, uri, err := c.entity.flatten(raw, c.opts)
		if err != nil {
			summary.Skipped++
			summary.reason(skipReason(err))
			span.RecordError(err)
			continue
		}

		cleaned, unknown, err := redact.Redact(flat, c.schema, redactOpts)
		summary.unknown(unknown)
		if err != nil {
			summary.Skipped++
			summary.reason(skipReason(err))
			span.RecordError(err)
			continue
		}

		if uri != "" {
			cleaned["uri"] = uri
		}
		out = append(out, cleaned)
		summary.Processed++
	}

	if len(summary.UnknownFields) > 0 {
		slog.Debug(
			"unclassified fields dropped",
			"entity_type", c.opts.EntityType,
			"fields", summary.UnknownFields,
		)
	}
	span.SetAttributes(
		attribute.Int("processed", summary.Processed),
		attribute.Int("skipped", summary.Skipped),
		attribute.Int("filtered", summary.Filtered),
	)

	return out, summary
}

func skipReason(err error) string {
	var missing record.MissingIdentifierError
	if errors.As(err, &missing) {
		return "missing_identifier"
	}
	return "invalid_record"
}
