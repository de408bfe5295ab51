package linkeddata

import (
	"strings"

	"fablab-opendata/pipeline/record"
)

// URIField is the cleaned-record field holding the linked-data identifier; in
// JSON-LD output it becomes the node's @id.
const URIField = "uri"

// Document is a serializable output document, handed to an external writer.
type Document map[string]any

// ToJSON renders named record sets as a plain Open Data document:
// a "data" object of datasets plus an optional "metadata" block.
func ToJSON(data map[string][]record.Record, metadata record.Record) Document {
	body := map[string]any{}
	for name, records := range data {
		body[name] = repairRecords(records)
	}

	doc := Document{"data": body}
	if len(metadata) > 0 {
		doc["metadata"] = repairValue(map[string]any(metadata))
	}
	return doc
}

// ToJSONLD renders one record set as a JSON-LD document: the caller's
// vocabulary mapping as @context and every record as a node of @graph, its
// uri field promoted to @id. Each input record appears exactly once,
// resolution failures notwithstanding.
func ToJSONLD(records []record.Record, context map[string]any) Document {
	graph := make([]any, 0, len(records))
	for _, rec := range records {
		node := map[string]any{}
		for name, value := range rec {
			if name == URIField {
				node["@id"] = repairValue(value)
				continue
			}
			node[name] = repairValue(value)
		}
		graph = append(graph, node)
	}

	return Document{
		"@context": repairValue(context),
		"@graph":   graph,
	}
}

func repairRecords(records []record.Record) []any {
	out := make([]any, 0, len(records))
	for _, rec := range records {
		out = append(out, repairValue(map[string]any(rec)))
	}
	return out
}

// repairValue walks a JSON-like value and replaces invalid UTF-8 byte
// sequences with U+FFFD. Broken text from the source API degrades to a
// readable marker instead of failing the whole document.
func repairValue(v any) any {
	switch value := v.(type) {
	case string:
		return strings.ToValidUTF8(value, "�")
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[strings.ToValidUTF8(k, "�")] = repairValue(item)
		}
		return out
	case record.Record:
		return repairValue(map[string]any(value))
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = repairValue(item)
		}
		return out
	default:
		return v
	}
}
