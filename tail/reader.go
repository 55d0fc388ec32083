// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tail

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source identifies one discovered log file and the session metadata
// carried by its location: the file name is the session id, the
// project directory name encodes the working directory.
type Source struct {
	Path       string
	SessionID  string
	WorkingDir string
}

// Line is one complete log line with its position for diagnostics.
type Line struct {
	Source Source
	Number int
	Data   []byte
}

// Reader performs cursor-based incremental reads.
type Reader struct {
	cursors *CursorStore
}

// NewReader returns a Reader tracking progress in cursors.
func NewReader(cursors *CursorStore) *Reader {
	return &Reader{cursors: cursors}
}

// ReadNew returns the complete lines appended to the source since the
// last read and advances the cursor past them. A file shorter than
// its cursor was truncated and rewritten; reading restarts from zero
// and the reset is reported so the caller can log it. An incomplete
// trailing line is left unconsumed for the next call.
func (r *Reader) ReadNew(source Source) (lines []Line, reset bool, err error) {
	cursor := r.cursors.Get(source.Path)

	file, err := os.Open(source.Path)
	if err != nil {
		return nil, false, fmt.Errorf("opening log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat log: %w", err)
	}
	if info.Size() < cursor.Offset {
		cursor = Cursor{}
		reset = true
	}
	if info.Size() == cursor.Offset {
		return nil, reset, nil
	}

	if _, err := file.Seek(cursor.Offset, io.SeekStart); err != nil {
		return nil, reset, fmt.Errorf("seek log: %w", err)
	}
	appended, err := io.ReadAll(file)
	if err != nil {
		return nil, reset, fmt.Errorf("reading log: %w", err)
	}

	// Consume up to the last newline only. Bytes past it are a line
	// still being appended.
	end := bytes.LastIndexByte(appended, '\n')
	if end < 0 {
		return nil, reset, nil
	}
	complete := appended[:end+1]

	for len(complete) > 0 {
		next := bytes.IndexByte(complete, '\n')
		cursor.Line++
		line := bytes.TrimSuffix(complete[:next], []byte("\r"))
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, Line{
				Source: source,
				Number: cursor.Line,
				Data:   append([]byte(nil), line...),
			})
		}
		complete = complete[next+1:]
	}

	cursor.Offset += int64(end + 1)
	r.cursors.Set(source.Path, cursor)
	return lines, reset, nil
}
