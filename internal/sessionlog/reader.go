package sessionlog

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
)

// Entry is a parsed log record.
type Entry struct {
	Seq    int            `json:"seq"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"` // full decoded record, including seq and type
}

// ReadLogEntries parses a session log file. Malformed lines are silently
// skipped, and the result is sorted by seq, defending readers against any
// residual write-order anomaly.
func ReadLogEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal(line, &fields); err != nil {
			continue
		}
		seq, ok := fields["seq"].(float64)
		if !ok {
			continue
		}
		recordType, _ := fields["type"].(string)
		entries = append(entries, Entry{
			Seq:    int(seq),
			Type:   recordType,
			Fields: fields,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}
