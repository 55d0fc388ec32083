// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/spyglass/lib/atomicfile"
)

// Snapshot files carry a four-byte magic, a one-byte schema version,
// and a zstd frame of canonically encoded CBOR. Canonical encoding
// plus sorted slices makes the bytes a pure function of the model, so
// two observers that reduced the same events write identical files.
const (
	snapshotMagic   = "SPYG"
	snapshotVersion = 1
)

// ErrIncompatibleSnapshot reports a snapshot file whose magic or
// schema version does not match. Callers treat it as no snapshot.
var ErrIncompatibleSnapshot = errors.New("incompatible snapshot file")

type persistedState struct {
	Revision uint64             `json:"revision"`
	SavedAt  time.Time          `json:"saved_at"`
	Sessions []persistedSession `json:"sessions"`
	Agents   []*Agent           `json:"agents"`
	Requests []*InputRequest    `json:"requests"`
}

type persistedSession struct {
	Session
	// SeenMessages persists the message dedup set, sorted.
	SeenMessages []string `json:"seen_messages"`
}

func newEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

var snapshotEnc = newEncMode()

// SaveSnapshot writes the model to path via atomic replace. The file
// is advisory: losing it costs a replay from the logs, nothing more.
func (s *Store) SaveSnapshot(path string) error {
	s.mu.Lock()
	state := s.persistLocked()
	s.mu.Unlock()

	encoded, err := snapshotEnc.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	writer, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	defer writer.Close()

	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	buf.WriteByte(snapshotVersion)
	buf.Write(writer.EncodeAll(encoded, nil))

	if err := atomicfile.Write(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the model with the contents of path. A
// missing file returns the os.ReadFile error unwrapped to
// fs.ErrNotExist; a wrong magic or version returns
// ErrIncompatibleSnapshot. Either way the store is untouched on
// error.
func (s *Store) LoadSnapshot(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(raw) < len(snapshotMagic)+1 || string(raw[:len(snapshotMagic)]) != snapshotMagic {
		return ErrIncompatibleSnapshot
	}
	if raw[len(snapshotMagic)] != snapshotVersion {
		return fmt.Errorf("%w: schema version %d", ErrIncompatibleSnapshot, raw[len(snapshotMagic)])
	}

	reader, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("creating zstd reader: %w", err)
	}
	defer reader.Close()

	decoded, err := reader.DecodeAll(raw[len(snapshotMagic)+1:], nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleSnapshot, err)
	}

	var state persistedState
	if err := cbor.Unmarshal(decoded, &state); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleSnapshot, err)
	}

	s.mu.Lock()
	s.restoreLocked(state)
	s.mu.Unlock()
	return nil
}

func (s *Store) persistLocked() persistedState {
	state := persistedState{
		Revision: s.revision,
		SavedAt:  s.clock.Now().UTC(),
	}
	for _, session := range s.sessions {
		persisted := persistedSession{Session: *session}
		persisted.seenMessages = nil
		persisted.SeenMessages = make([]string, 0, len(session.seenMessages))
		for id := range session.seenMessages {
			persisted.SeenMessages = append(persisted.SeenMessages, id)
		}
		sort.Strings(persisted.SeenMessages)
		state.Sessions = append(state.Sessions, persisted)
	}
	sort.Slice(state.Sessions, func(i, j int) bool {
		return state.Sessions[i].ID < state.Sessions[j].ID
	})

	for _, agent := range s.agents {
		state.Agents = append(state.Agents, agent.clone())
	}
	sort.Slice(state.Agents, func(i, j int) bool {
		return state.Agents[i].ID < state.Agents[j].ID
	})

	for _, request := range s.requests {
		state.Requests = append(state.Requests, request.clone())
	}
	sort.Slice(state.Requests, func(i, j int) bool {
		return state.Requests[i].ID < state.Requests[j].ID
	})
	return state
}

func (s *Store) restoreLocked(state persistedState) {
	s.revision = state.Revision
	s.sessions = make(map[string]*Session, len(state.Sessions))
	s.agents = make(map[string]*Agent, len(state.Agents))
	s.tools = make(map[string]*ToolUse)
	s.requests = make(map[string]*InputRequest, len(state.Requests))

	for _, persisted := range state.Sessions {
		session := persisted.Session
		session.seenMessages = make(map[string]struct{}, len(persisted.SeenMessages))
		for _, id := range persisted.SeenMessages {
			session.seenMessages[id] = struct{}{}
		}
		s.sessions[session.ID] = &session
	}
	for _, agent := range state.Agents {
		s.agents[agent.ID] = agent
		for _, tool := range agent.ToolUses {
			s.tools[tool.ID] = tool
		}
	}
	for _, request := range state.Requests {
		s.requests[request.ID] = request
	}
}
