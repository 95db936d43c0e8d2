// Package state decodes and encodes persisted watch records.
//
// A persisted value is either the current record object or the legacy bare fingerprint
// string. The shape is resolved once here; every backend and the rest of the engine only
// ever see monitor.WatchRecord.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// ErrUnrecognizedShape is returned for values that are neither a record object nor a legacy string.
var ErrUnrecognizedShape = errors.New("unrecognized record shape")

// legacyTimeLayouts are accepted for last_check in addition to RFC 3339.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// wireRecord is the on-disk object shape.
type wireRecord struct {
	Hash      *string `json:"hash"`
	Text      string  `json:"text"`
	Scores    string  `json:"scores"`
	LastCheck string  `json:"last_check"`
}

// DecodeRecord resolves one persisted value into a canonical record.
// Legacy strings become records with empty text and extract.
func DecodeRecord(raw json.RawMessage) (monitor.WatchRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return monitor.WatchRecord{}, ErrUnrecognizedShape
	}
	switch trimmed[0] {
	case '"':
		var hash string
		if err := json.Unmarshal(trimmed, &hash); err != nil {
			return monitor.WatchRecord{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		return monitor.WatchRecord{Fingerprint: hash}, nil
	case '{':
		var w wireRecord
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return monitor.WatchRecord{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		if w.Hash == nil {
			return monitor.WatchRecord{}, fmt.Errorf("%w: missing hash", ErrUnrecognizedShape)
		}
		return monitor.WatchRecord{
			Fingerprint:       *w.Hash,
			NormalizedText:    w.Text,
			StructuredExtract: w.Scores,
			LastCheckedAt:     parseLastCheck(w.LastCheck),
		}, nil
	default:
		return monitor.WatchRecord{}, ErrUnrecognizedShape
	}
}

// EncodeRecord renders a record in the current object shape.
func EncodeRecord(r monitor.WatchRecord) (json.RawMessage, error) {
	hash := r.Fingerprint
	w := wireRecord{
		Hash:   &hash,
		Text:   r.NormalizedText,
		Scores: r.StructuredExtract,
	}
	if !r.LastCheckedAt.IsZero() {
		w.LastCheck = r.LastCheckedAt.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

// DecodeDocument decodes a whole state document. URLs whose value has an unrecognized
// shape are left out of the result and returned in skipped.
func DecodeDocument(data []byte) (monitor.State, []string, error) {
	out := monitor.State{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode state document: %w", err)
	}
	var skipped []string
	for url, raw := range doc {
		rec, err := DecodeRecord(raw)
		if err != nil {
			skipped = append(skipped, url)
			continue
		}
		out[url] = rec
	}
	return out, skipped, nil
}

// EncodeDocument renders the full mapping as an indented JSON object.
func EncodeDocument(s monitor.State) ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(s))
	for url, rec := range s {
		raw, err := EncodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", url, err)
		}
		doc[url] = raw
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode state document: %w", err)
	}
	return buf.Bytes(), nil
}

func parseLastCheck(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
