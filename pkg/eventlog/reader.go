package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReadEvents loads every event journaled on the given day, in write order.
// A missing journal file is not an error; it returns no events.
func ReadEvents(logDir string, day time.Time) ([]Event, error) {
	path := filepath.Join(logDir, fmt.Sprintf("events-%s.jsonl", day.Format("2006-01-02")))

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open event log %s: %w", path, err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse event log line: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log %s: %w", path, err)
	}
	return events, nil
}
