// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tail

import (
	"os"
	"path/filepath"
	"testing"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		t.Fatal(err)
	}
}

func newTestReader(t *testing.T) (*Reader, *CursorStore) {
	t.Helper()
	cursors, err := OpenCursorStore(filepath.Join(t.TempDir(), "cursors.json"))
	if err != nil {
		t.Fatal(err)
	}
	return NewReader(cursors), cursors
}

func TestReadNewIncremental(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.jsonl")
	source := Source{Path: path, SessionID: "abc"}
	reader, _ := newTestReader(t)

	writeLog(t, path, "{\"a\":1}\n{\"a\":2}\n")
	lines, reset, err := reader.ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if reset {
		t.Error("first read should not report a reset")
	}
	if len(lines) != 2 || string(lines[0].Data) != `{"a":1}` {
		t.Fatalf("unexpected lines: %v", lines)
	}
	if lines[1].Number != 2 {
		t.Errorf("line number = %d, want 2", lines[1].Number)
	}

	// Nothing new: no lines, no error.
	lines, _, err = reader.ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Fatalf("re-read delivered %d lines, want 0", len(lines))
	}

	appendLog(t, path, "{\"a\":3}\n")
	lines, _, err = reader.ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0].Number != 3 {
		t.Fatalf("unexpected appended lines: %v", lines)
	}
}

func TestReadNewHoldsIncompleteTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.jsonl")
	source := Source{Path: path, SessionID: "abc"}
	reader, _ := newTestReader(t)

	writeLog(t, path, "{\"a\":1}\n{\"a\":2")
	lines, _, err := reader.ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (partial line held back)", len(lines))
	}

	appendLog(t, path, "}\n")
	lines, _, err = reader.ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || string(lines[0].Data) != `{"a":2}` {
		t.Fatalf("completed line not delivered whole: %v", lines)
	}
}

func TestReadNewTruncationResets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.jsonl")
	source := Source{Path: path, SessionID: "abc"}
	reader, _ := newTestReader(t)

	writeLog(t, path, "{\"a\":1}\n{\"a\":2}\n{\"a\":3}\n")
	if _, _, err := reader.ReadNew(source); err != nil {
		t.Fatal(err)
	}

	// The file is rewritten shorter than the cursor.
	writeLog(t, path, "{\"b\":1}\n")
	lines, reset, err := reader.ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if !reset {
		t.Error("truncation should be reported")
	}
	if len(lines) != 1 || string(lines[0].Data) != `{"b":1}` || lines[0].Number != 1 {
		t.Fatalf("expected re-read from zero, got %v", lines)
	}
}

func TestReadNewSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.jsonl")
	source := Source{Path: path, SessionID: "abc"}
	reader, _ := newTestReader(t)

	writeLog(t, path, "{\"a\":1}\n\n  \n{\"a\":2}\r\n")
	lines, _, err := reader.ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if string(lines[1].Data) != `{"a":2}` {
		t.Errorf("CR not stripped: %q", lines[1].Data)
	}
	// Blank lines still count toward line numbers.
	if lines[1].Number != 4 {
		t.Errorf("line number = %d, want 4", lines[1].Number)
	}
}

func TestCursorsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc.jsonl")
	cursorPath := filepath.Join(dir, "cursors.json")
	source := Source{Path: path, SessionID: "abc"}

	cursors, err := OpenCursorStore(cursorPath)
	if err != nil {
		t.Fatal(err)
	}
	reader := NewReader(cursors)

	writeLog(t, path, "{\"a\":1}\n{\"a\":2}\n")
	if _, _, err := reader.ReadNew(source); err != nil {
		t.Fatal(err)
	}
	if err := cursors.Flush(); err != nil {
		t.Fatal(err)
	}

	appendLog(t, path, "{\"a\":3}\n")

	reopened, err := OpenCursorStore(cursorPath)
	if err != nil {
		t.Fatal(err)
	}
	lines, _, err := NewReader(reopened).ReadNew(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0].Number != 3 {
		t.Fatalf("resume after restart delivered %v, want line 3 only", lines)
	}
}

func TestOpenCursorStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")
	writeLog(t, path, "not json")

	store, err := OpenCursorStore(path)
	if err == nil {
		t.Error("corrupt cursor file should surface an error")
	}
	if store == nil {
		t.Fatal("store should still be usable after a corrupt load")
	}
	if got := store.Get("x"); got != (Cursor{}) {
		t.Errorf("corrupt store should start empty, got %+v", got)
	}
}
