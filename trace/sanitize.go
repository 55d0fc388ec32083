// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import "strings"

// RedactedPlaceholder replaces values whose keys look like secrets.
const RedactedPlaceholder = "[redacted]"

// TruncatedMarker is appended to string values cut at the length cap.
const TruncatedMarker = "… [truncated]"

// ElidedPlaceholder replaces structures nested beyond maxNestingDepth.
const ElidedPlaceholder = "[nested too deep]"

// maxNestingDepth bounds the descent into nested parameter structures.
// Tool parameters are shallow in practice; anything deeper is
// summarized instead of copied.
const maxNestingDepth = 8

// defaultRedactSubstrings are matched case-insensitively against
// parameter key names. A match masks the entire value regardless of
// its type.
var defaultRedactSubstrings = []string{
	"token",
	"secret",
	"password",
	"passwd",
	"api_key",
	"apikey",
	"credential",
	"authorization",
	"cookie",
	"private_key",
}

// Sanitizer rewrites parameter snapshots before storage: secret-looking
// keys are masked, oversized strings truncated, nested structures
// handled recursively down to a depth cap. Sanitization is data
// hygiene, not an error path: it never fails.
type Sanitizer struct {
	maxStringLength  int
	redactSubstrings []string
}

// NewSanitizer returns a Sanitizer truncating strings beyond
// maxStringLength runes (0 means the 512-rune default) and masking the
// built-in secret key patterns plus any extraKeys.
func NewSanitizer(maxStringLength int, extraKeys []string) *Sanitizer {
	if maxStringLength <= 0 {
		maxStringLength = 512
	}
	substrings := make([]string, 0, len(defaultRedactSubstrings)+len(extraKeys))
	substrings = append(substrings, defaultRedactSubstrings...)
	for _, key := range extraKeys {
		substrings = append(substrings, strings.ToLower(key))
	}
	return &Sanitizer{
		maxStringLength:  maxStringLength,
		redactSubstrings: substrings,
	}
}

// Map returns a sanitized deep copy of parameters. The input is never
// mutated. Nil input yields nil.
func (s *Sanitizer) Map(parameters map[string]any) map[string]any {
	return s.mapValue(parameters, 0)
}

func (s *Sanitizer) mapValue(parameters map[string]any, depth int) map[string]any {
	if parameters == nil {
		return nil
	}
	result := make(map[string]any, len(parameters))
	for key, value := range parameters {
		if s.secretKey(key) {
			result[key] = RedactedPlaceholder
			continue
		}
		result[key] = s.value(value, depth)
	}
	return result
}

// String truncates a single string to the configured cap.
func (s *Sanitizer) String(value string) string {
	runes := []rune(value)
	if len(runes) <= s.maxStringLength {
		return value
	}
	return string(runes[:s.maxStringLength]) + TruncatedMarker
}

func (s *Sanitizer) value(value any, depth int) any {
	switch typed := value.(type) {
	case string:
		return s.String(typed)
	case map[string]any:
		if depth >= maxNestingDepth {
			return ElidedPlaceholder
		}
		return s.mapValue(typed, depth+1)
	case []any:
		if depth >= maxNestingDepth {
			return ElidedPlaceholder
		}
		result := make([]any, len(typed))
		for i, element := range typed {
			result[i] = s.value(element, depth+1)
		}
		return result
	default:
		// Numbers, booleans, and nulls pass through unchanged.
		return value
	}
}

func (s *Sanitizer) secretKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, substring := range s.redactSubstrings {
		if strings.Contains(lowered, substring) {
			return true
		}
	}
	return false
}
