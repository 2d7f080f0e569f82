//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package redact implements a pure, deterministic transformation
// that strips PII and secret-shaped strings from a JSON value before it
// reaches the audit sink or the WebSocket dashboard. Forwarded bytes
// (the data path) are never touched by this package.
package redact

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Placeholder replaces any value that matches a redaction pattern.
const Placeholder = "[REDACTED]"

// Match records that a redaction pattern fired, without retaining the
// original matched content, so it can be logged as a diagnostic
// ("this field was redacted") without itself leaking anything.
type Match struct {
	FieldPath   string
	PatternName string
}

// Config holds the compiled redaction pattern set.
//
// All fields are safe to modify after construction but before first use.
type Config struct {
	// KeyNames is the set of JSON object key names (case-insensitive)
	// whose values are always redacted regardless of shape.
	KeyNames map[string]struct{}

	// ValuePatterns are named regexes checked against string values
	// whose key did not already match KeyNames.
	ValuePatterns []NamedPattern
}

// NamedPattern pairs a compiled regex with a diagnostic name.
type NamedPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// defaultKeyNames lists the object keys whose values are always secret.
var defaultKeyNames = []string{
	"api_key", "apikey", "access_token", "secret_key", "password", "token", "authorization",
}

// DefaultConfig returns the default redaction pattern set: a fixed set
// of case-insensitive key names, plus email/OpenAI-key/Bearer value
// regexes.
func DefaultConfig() *Config {
	keys := make(map[string]struct{}, len(defaultKeyNames))
	for _, k := range defaultKeyNames {
		keys[strings.ToLower(k)] = struct{}{}
	}
	return &Config{
		KeyNames: keys,
		ValuePatterns: []NamedPattern{
			{Name: "email", Pattern: regexp.MustCompile(`[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+`)},
			{Name: "openai_api_key", Pattern: regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
			{Name: "bearer_token", Pattern: regexp.MustCompile(`Bearer [A-Za-z0-9._\-]+`)},
		},
	}
}

// Redactor applies a [Config] to JSON values.
type Redactor struct {
	Config *Config
}

// New returns a [*Redactor] using the default pattern set.
func New() *Redactor {
	return &Redactor{Config: DefaultConfig()}
}

// Redact returns a sanitized deep clone of value, with every string that
// matches a configured key name or value pattern replaced by
// [Placeholder]. The original value is never mutated. Redact is
// idempotent: Redact(Redact(x)) == Redact(x), because [Placeholder]
// itself matches none of the default patterns.
//
// matches, if non-nil, is appended with one [Match] per redaction that
// fired, for diagnostic logging; pass nil to skip collecting them.
func (r *Redactor) Redact(value any, matches *[]Match) any {
	return r.walk(value, "$", matches)
}

func (r *Redactor) walk(value any, path string, matches *[]Match) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			childPath := path + "." + key
			if r.keyMatches(key) {
				out[key] = r.redactLeaf(child, childPath, "key:"+strings.ToLower(key), matches)
				continue
			}
			out[key] = r.walk(child, childPath, matches)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = r.walk(child, path+"[]", matches)
		}
		return out
	case string:
		return r.redactString(v, path, matches)
	default:
		return value
	}
}

// redactLeaf replaces a value entirely because its key name matched,
// regardless of the value's shape (object, array, or scalar).
func (r *Redactor) redactLeaf(value any, path, patternName string, matches *[]Match) any {
	if matches != nil {
		*matches = append(*matches, Match{FieldPath: path, PatternName: patternName})
	}
	return Placeholder
}

func (r *Redactor) keyMatches(key string) bool {
	_, ok := r.Config.KeyNames[strings.ToLower(key)]
	return ok
}

// redactString replaces the whole string if any value pattern matches
// anywhere within it. This is intentionally coarser than surgical
// substring replacement: a string containing an embedded secret is
// itself treated as sensitive.
func (r *Redactor) redactString(s, path string, matches *[]Match) any {
	for _, np := range r.Config.ValuePatterns {
		if np.Pattern.MatchString(s) {
			if matches != nil {
				*matches = append(*matches, Match{FieldPath: path, PatternName: np.Name})
			}
			return Placeholder
		}
	}
	return s
}

// RedactJSON decodes raw JSON, redacts it, and re-encodes it. Returns
// raw unchanged if it does not parse as JSON; malformed input still
// propagates on the observation branch rather than being dropped.
func (r *Redactor) RedactJSON(raw json.RawMessage, matches *[]Match) json.RawMessage {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return raw
	}
	redacted := r.walk(value, "$", matches)
	out, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return out
}
