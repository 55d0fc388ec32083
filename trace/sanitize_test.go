// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"strings"
	"testing"
)

func TestSanitizerMasksSecretKeys(t *testing.T) {
	sanitizer := NewSanitizer(0, nil)

	result := sanitizer.Map(map[string]any{
		"api_key":       "sk-abc123",
		"Authorization": "Bearer xyz",
		"file_path":     "/tmp/notes.txt",
	})

	if result["api_key"] != RedactedPlaceholder {
		t.Errorf("api_key = %v, want %q", result["api_key"], RedactedPlaceholder)
	}
	if result["Authorization"] != RedactedPlaceholder {
		t.Errorf("Authorization = %v, want %q", result["Authorization"], RedactedPlaceholder)
	}
	if result["file_path"] != "/tmp/notes.txt" {
		t.Errorf("file_path = %v, want unchanged", result["file_path"])
	}
}

func TestSanitizerTruncatesLongStrings(t *testing.T) {
	sanitizer := NewSanitizer(10, nil)

	result := sanitizer.Map(map[string]any{
		"content": strings.Repeat("x", 100),
	})

	content, ok := result["content"].(string)
	if !ok {
		t.Fatalf("content is %T, want string", result["content"])
	}
	if !strings.HasSuffix(content, TruncatedMarker) {
		t.Errorf("content %q lacks truncation marker", content)
	}
	if len([]rune(content)) != 10+len([]rune(TruncatedMarker)) {
		t.Errorf("content rune length = %d, want %d", len([]rune(content)), 10+len([]rune(TruncatedMarker)))
	}
}

func TestSanitizerRecursesNestedStructures(t *testing.T) {
	sanitizer := NewSanitizer(0, nil)

	result := sanitizer.Map(map[string]any{
		"outer": map[string]any{
			"session_token": "secret-value",
			"list": []any{
				map[string]any{"password": "hunter2"},
				"plain",
			},
		},
	})

	outer := result["outer"].(map[string]any)
	if outer["session_token"] != RedactedPlaceholder {
		t.Errorf("nested session_token = %v, want redacted", outer["session_token"])
	}
	list := outer["list"].([]any)
	inner := list[0].(map[string]any)
	if inner["password"] != RedactedPlaceholder {
		t.Errorf("password inside list = %v, want redacted", inner["password"])
	}
	if list[1] != "plain" {
		t.Errorf("plain list element = %v, want unchanged", list[1])
	}
}

func TestSanitizerElidesDeepNesting(t *testing.T) {
	sanitizer := NewSanitizer(0, nil)

	// Build a structure one level deeper than the cap.
	leaf := any("bottom")
	for range maxNestingDepth + 1 {
		leaf = map[string]any{"next": leaf}
	}

	result := sanitizer.Map(map[string]any{"root": leaf})

	depth := 0
	value := result["root"]
	for {
		nested, ok := value.(map[string]any)
		if !ok {
			break
		}
		depth++
		value = nested["next"]
	}
	if value != ElidedPlaceholder {
		t.Errorf("deep value = %v, want %q", value, ElidedPlaceholder)
	}
	if depth != maxNestingDepth {
		t.Errorf("copied %d levels, want %d", depth, maxNestingDepth)
	}
}

func TestSanitizerExtraKeys(t *testing.T) {
	sanitizer := NewSanitizer(0, []string{"internal_id"})

	result := sanitizer.Map(map[string]any{"Internal_ID": "42"})
	if result["Internal_ID"] != RedactedPlaceholder {
		t.Errorf("Internal_ID = %v, want redacted", result["Internal_ID"])
	}
}

func TestSanitizerDoesNotMutateInput(t *testing.T) {
	sanitizer := NewSanitizer(0, nil)

	input := map[string]any{"token": "abc"}
	sanitizer.Map(input)
	if input["token"] != "abc" {
		t.Error("sanitizer mutated its input map")
	}
}
