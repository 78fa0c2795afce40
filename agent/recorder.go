package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bazelment/yoloswe/agentsession/internal/ndjson"
	"github.com/bazelment/yoloswe/agentsession/protocol"
)

// recorder appends every protocol line of one session attempt to a .jsonl
// file as protocol.TraceEntry records.
type recorder struct {
	w         *ndjson.Writer
	path      string
	sessionID string
	mu        sync.Mutex
}

func newRecorder(dir string, attempt uint64) (*recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	name := fmt.Sprintf("%s-%d.jsonl", time.Now().Format("20060102T150405"), attempt)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return &recorder{w: ndjson.NewWriter(f), path: path}, nil
}

func (r *recorder) setSessionID(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()
}

// record writes one entry. Recording failures never affect the session.
func (r *recorder) record(direction string, line []byte) {
	if r == nil || !json.Valid(line) {
		return
	}
	r.mu.Lock()
	sid := r.sessionID
	r.mu.Unlock()

	_ = r.w.WriteJSON(protocol.TraceEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Direction: direction,
		SessionID: sid,
		Message:   json.RawMessage(line),
	})
}

func (r *recorder) close() error {
	if r == nil {
		return nil
	}
	return r.w.Close()
}
