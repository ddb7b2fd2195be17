package memory

import (
	"encoding/json"
	"time"
)

// logEntry is one line of the JSONL action log.
type logEntry struct {
	Timestamp time.Time `json:"ts"`
	Action    string    `json:"action"`
	Input     string    `json:"input"`
	Result    string    `json:"result"`
	Success   bool      `json:"success"`
}

func (e logEntry) marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalLogEntry(line string) (logEntry, error) {
	var e logEntry
	err := json.Unmarshal([]byte(line), &e)
	return e, err
}
