// Package sessionlog implements per-session ordered append-only event logs.
// Each session gets one writer instance; records carry a monotonically
// increasing seq so readers can restore order regardless of physical write
// timing.
package sessionlog

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record types written by the writer itself.
const (
	TypeSessionStart = "session_start"
	TypeSessionEnd   = "session_end"
)

// Writer appends ordered NDJSON records to a single session's log file.
// Appends may come from concurrent goroutines; a single in-progress flush
// loop drains the queue so writes to the file never interleave.
type Writer struct {
	sessionID string
	path      string

	mu       sync.Mutex
	seq      int
	queue    [][]byte
	flushing bool
	ended    bool
}

// NewWriter creates a writer for the given session, logging to path.
// The file is not touched until WriteHeader or the first Append.
func NewWriter(sessionID, path string) *Writer {
	return &Writer{sessionID: sessionID, path: path}
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteHeader truncates the log file and writes a session_start record at
// seq 0 carrying the supplied metadata.
func (w *Writer) WriteHeader(metadata map[string]any) {
	w.mu.Lock()
	w.seq = 0
	w.queue = nil
	w.ended = false
	line := w.buildLocked(TypeSessionStart, metadata)
	w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		log.Printf("[sessionlog:%s] create log dir: %v", w.sessionID, err)
		return
	}
	if err := os.WriteFile(w.path, append(line, '\n'), 0o644); err != nil {
		log.Printf("[sessionlog:%s] write header: %v", w.sessionID, err)
	}
}

// Append constructs a record {type, timestamp, seq, session_id, ...data},
// enqueues it, and triggers a flush. Safe for concurrent use. Appends
// arriving after End are dropped, so session_end stays the final record even
// when a drain goroutine outlives the session.
func (w *Writer) Append(recordType string, data map[string]any) {
	w.mu.Lock()
	if w.ended {
		w.mu.Unlock()
		return
	}
	if recordType == TypeSessionEnd {
		w.ended = true
	}
	line := w.buildLocked(recordType, data)
	w.queue = append(w.queue, line)
	w.mu.Unlock()

	w.flush()
}

// EndInfo describes the terminal state of a session for the closing record.
type EndInfo struct {
	Status   string
	Error    string
	Duration time.Duration
}

// End appends the terminal session_end record.
func (w *Writer) End(info EndInfo) {
	data := map[string]any{
		"status":      info.Status,
		"duration_ms": info.Duration.Milliseconds(),
	}
	if info.Error != "" {
		data["error"] = info.Error
	}
	w.Append(TypeSessionEnd, data)
}

// buildLocked assigns the next seq and marshals a record. Must be called
// while holding w.mu so seq assignment and queue order agree.
func (w *Writer) buildLocked(recordType string, data map[string]any) []byte {
	record := make(map[string]any, len(data)+4)
	for k, v := range data {
		record[k] = v
	}
	record["type"] = recordType
	record["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["seq"] = w.seq
	record["session_id"] = w.sessionID
	w.seq++

	line, err := json.Marshal(record)
	if err != nil {
		// Unmarshalable payload; keep the ordering slot with a stub record.
		line, _ = json.Marshal(map[string]any{
			"type":       recordType,
			"seq":        record["seq"],
			"session_id": w.sessionID,
			"error":      "unencodable payload",
		})
	}
	return line
}

// flush drains the queue to disk. The flushing flag guarantees exactly one
// drain loop at a time; appends racing with an active flush only enqueue and
// get picked up by the in-progress loop.
func (w *Writer) flush() {
	w.mu.Lock()
	if w.flushing {
		w.mu.Unlock()
		return
	}
	w.flushing = true

	for len(w.queue) > 0 {
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		w.writeBatch(batch)

		w.mu.Lock()
	}
	w.flushing = false
	w.mu.Unlock()
}

// writeBatch appends records to the log file. Failures are best-effort:
// logged and dropped, never retried.
func (w *Writer) writeBatch(batch [][]byte) {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		log.Printf("[sessionlog:%s] create log dir: %v", w.sessionID, err)
		return
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("[sessionlog:%s] open log file: %v", w.sessionID, err)
		return
	}
	defer f.Close()

	for _, line := range batch {
		if _, err := f.Write(append(line, '\n')); err != nil {
			log.Printf("[sessionlog:%s] append: %v", w.sessionID, err)
			return
		}
	}
}
