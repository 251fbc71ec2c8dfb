// Package history keeps a tamper-evident record of pipeline runs: an
// append-only JSONL journal whose entries are hash-chained, so edits,
// reordering, or truncation of past records are detectable.
package history

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"conveyor/pkg/checksum"
)

// Entry records one job outcome within a run.
type Entry struct {
	Index     int       `json:"index"`
	RunID     string    `json:"run_id"`
	Branch    string    `json:"branch"`
	Stage     string    `json:"stage"`
	Job       string    `json:"job"`
	Status    string    `json:"status"`
	LogHash   string    `json:"log_hash,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// canonical returns the JSON bytes hashed for the entry. Hash itself is
// excluded.
func (e *Entry) canonical() ([]byte, error) {
	view := struct {
		Index     int       `json:"index"`
		RunID     string    `json:"run_id"`
		Branch    string    `json:"branch"`
		Stage     string    `json:"stage"`
		Job       string    `json:"job"`
		Status    string    `json:"status"`
		LogHash   string    `json:"log_hash,omitempty"`
		Timestamp time.Time `json:"timestamp"`
		PrevHash  string    `json:"prev_hash"`
	}{e.Index, e.RunID, e.Branch, e.Stage, e.Job, e.Status, e.LogHash, e.Timestamp, e.PrevHash}
	return json.Marshal(view)
}

func (e *Entry) computeHash() (string, error) {
	data, err := e.canonical()
	if err != nil {
		return "", errors.Wrap(err, "canonicalize entry")
	}
	return checksum.Bytes(data), nil
}

// Journal is the on-disk run history. One JSON entry per line.
type Journal struct {
	mu      sync.Mutex
	path    string
	entries []*Entry
}

// Open loads an existing journal or creates an empty one.
func Open(path string) (*Journal, error) {
	j := &Journal{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read journal %s", path)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, errors.Wrapf(err, "decode journal %s", path)
		}
		j.entries = append(j.entries, &e)
	}
	return j, nil
}

// Append chains and persists a new entry. Index, Timestamp, PrevHash, and
// Hash are filled in here; callers supply only the record fields.
func (j *Journal) Append(e *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.Index = len(j.entries)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.PrevHash = ""
	if n := len(j.entries); n > 0 {
		e.PrevHash = j.entries[n-1].Hash
	}

	h, err := e.computeHash()
	if err != nil {
		return err
	}
	e.Hash = h

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open journal %s", j.path)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(e); err != nil {
		return errors.Wrapf(err, "append journal %s", j.path)
	}
	j.entries = append(j.entries, e)
	return nil
}

// Entries returns a copy of the in-memory entry list.
func (j *Journal) Entries() []*Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Verify recomputes every hash and chain link.
func (j *Journal) Verify() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i, e := range j.entries {
		h, err := e.computeHash()
		if err != nil {
			return errors.Wrapf(err, "entry %d", i)
		}
		if h != e.Hash {
			return errors.Errorf("hash mismatch at entry %d", i)
		}
		if e.Index != i {
			return errors.Errorf("index mismatch at entry %d: recorded %d", i, e.Index)
		}
		if i > 0 && e.PrevHash != j.entries[i-1].Hash {
			return errors.Errorf("chain broken at entry %d", i)
		}
		if i == 0 && e.PrevHash != "" {
			return errors.New("first entry has a previous hash")
		}
	}
	return nil
}
