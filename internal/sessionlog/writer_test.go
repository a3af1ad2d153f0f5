package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWriterSequencing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.ndjson")
	w := NewWriter("s1", path)

	w.WriteHeader(map[string]any{"mode": "build"})
	for i := 0; i < 10; i++ {
		w.Append("tool_use", map[string]any{"tool": fmt.Sprintf("tool-%d", i)})
	}
	w.End(EndInfo{Status: "completed", Duration: time.Second})

	entries, err := ReadLogEntries(path)
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if len(entries) != 12 {
		t.Fatalf("got %d entries, want 12", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
	}
	if entries[0].Type != TypeSessionStart {
		t.Errorf("first entry type = %s, want session_start", entries[0].Type)
	}
	if entries[len(entries)-1].Type != TypeSessionEnd {
		t.Errorf("last entry type = %s, want session_end", entries[len(entries)-1].Type)
	}
}

func TestWriterConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s2.ndjson")
	w := NewWriter("s2", path)
	w.WriteHeader(nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Append("event", map[string]any{"i": i})
		}(i)
	}
	wg.Wait()

	// All appends have been enqueued; a final synchronous append guarantees
	// any in-flight flush loop has drained the queue once it returns here.
	w.Append("event", map[string]any{"final": true})

	// Flush loops run on the appending goroutines, so wait for the file to
	// settle at the expected record count.
	var entries []Entry
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err = ReadLogEntries(path)
		if err == nil && len(entries) == n+2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if len(entries) != n+2 {
		t.Fatalf("got %d entries, want %d", len(entries), n+2)
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Fatalf("entry %d has seq %d; seqs must be 0..%d strictly increasing", i, e.Seq, n+1)
		}
	}
}

func TestWriterDropsAppendsAfterEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s4.ndjson")
	w := NewWriter("s4", path)

	w.WriteHeader(nil)
	w.Append("output", map[string]any{"line": "before"})
	w.End(EndInfo{Status: "cancelled", Error: "Cancelled by user"})

	// A drain goroutine may still be reading the dying process; its late
	// appends must not land after the terminal record.
	w.Append("output", map[string]any{"line": "after"})
	w.End(EndInfo{Status: "completed"})

	entries, err := ReadLogEntries(path)
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Type != TypeSessionEnd {
		t.Errorf("last entry type = %s, want session_end", last.Type)
	}
	if status, _ := last.Fields["status"].(string); status != "cancelled" {
		t.Errorf("end status = %q, want cancelled", status)
	}
	for _, e := range entries {
		if line, _ := e.Fields["line"].(string); line == "after" {
			t.Error("append after End was written")
		}
	}
}

func TestReadLogEntriesSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3.ndjson")
	content := `{"seq": 1, "type": "b", "session_id": "s3"}
not json at all
{"seq": 0, "type": "a", "session_id": "s3"}
{"type": "missing-seq"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	entries, err := ReadLogEntries(path)
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Sorted by seq even though the file was written out of order.
	if entries[0].Type != "a" || entries[1].Type != "b" {
		t.Errorf("entries out of order: %v", entries)
	}
}

func TestRegistryReturnsSameWriter(t *testing.T) {
	reg := NewRegistry()
	dir := t.TempDir()

	w1 := reg.Writer("s1", filepath.Join(dir, "s1.ndjson"))
	w2 := reg.Writer("s1", filepath.Join(dir, "other.ndjson"))
	if w1 != w2 {
		t.Error("registry returned a second writer for the same session")
	}

	reg.Release("s1")
	w3 := reg.Writer("s1", filepath.Join(dir, "s1.ndjson"))
	if w3 == w1 {
		t.Error("released writer was returned again")
	}
}
