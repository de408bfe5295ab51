// Package linkeddata builds resolvable identifiers for cleaned records and
// serializes datasets as plain JSON or JSON-LD documents.
package linkeddata

import (
	"net/url"
	"regexp"
	"strings"

	"fablab-opendata/pipeline/record"
)

// BuildURI constructs the stable linked-data identifier for an entity:
// {namespace}/{entityType}/{entityID}. The id is percent-encoded, so distinct
// (type, id) pairs can never produce the same URI. No randomness, stable
// across runs.
func BuildURI(namespace, entityType, entityID string) (string, error) {
	if entityType == "" {
		return "", record.MissingIdentifierError{Field: "entity type"}
	}
	if entityID == "" {
		return "", record.MissingIdentifierError{Field: "entity id"}
	}

	namespace = strings.TrimRight(namespace, "/")
	return namespace + "/" + url.PathEscape(entityType) + "/" + url.PathEscape(entityID), nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes an arbitrary name into a url-safe slug. Useful when the
// source record has a human name but no slug of its own.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugInvalid.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
