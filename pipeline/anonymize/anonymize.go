// Package anonymize derives pseudonyms for stable subject identifiers and
// defines the anonymization modes of the export pipeline.
//
// Pseudonyms are HMAC-SHA256 digests of the raw identifier keyed with a
// per-run secret, encoded as unpadded base64url. The derivation is
// deterministic for a fixed (identifier, key) pair, so one subject keeps one
// pseudonym across every dataset cleaned with the same key, and it is one-way:
// without the key there is no practical path from pseudonym back to
// identifier. An unkeyed hash would be brute-forceable over the small space of
// fab-lab user ids and emails, which is why the key is mandatory.
package anonymize

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"fablab-opendata/pipeline/record"
)

// Mode selects the privacy guarantee of one pipeline run. It is chosen once
// per invocation and must not vary mid-batch.
type Mode string

const (
	// ModeFull drops identifying fields entirely; no pseudonym is emitted
	// and records of one subject cannot be correlated.
	ModeFull Mode = "full"
	// ModePseudo replaces the subject identifier with a stable pseudonym,
	// keeping records of one subject correlatable without identifying them.
	ModePseudo Mode = "pseudo"
)

// ParseMode validates a mode string from configuration or a CLI flag.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModePseudo:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown anonymization mode %q (want %q or %q)", s, ModeFull, ModePseudo)
	}
}

// Pseudonymize maps a raw subject identifier to its pseudonym under the given
// key. An empty identifier fails with record.MissingIdentifierError: deriving
// a pseudonym from a placeholder would make every record with a missing
// identifier look like the same anonymous subject.
func Pseudonymize(rawID, key string) (string, error) {
	if rawID == "" {
		return "", record.MissingIdentifierError{Field: "subject identifier"}
	}
	if key == "" {
		return "", fmt.Errorf("pseudonym key must not be empty")
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(rawID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
