package analysis

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Record is one parsed request log line. Field names mirror what the
// request-logger middleware emits.
type Record struct {
	Timestamp  time.Time
	Level      string
	Message    string
	Status     int
	DurationMS float64
	EventType  string
	CustomerID string
	Error      string
}

// rawLine matches the zap JSON production encoding.
type rawLine struct {
	Timestamp  string  `json:"@timestamp"`
	Level      string  `json:"log.level"`
	Message    string  `json:"message"`
	Status     int     `json:"status"`
	DurationMS float64 `json:"duration_ms"`
	EventType  string  `json:"event_type"`
	CustomerID string  `json:"customer_id"`
	Error      string  `json:"error"`
}

const requestMessage = "http request"

// maxLineBytes bounds a single log line; receipts payloads never land in
// request lines so 1MB is generous.
const maxLineBytes = 1 << 20

// Parse streams log lines from r and calls fn for each request record whose
// timestamp falls inside the window ending at now. A zero window means no
// time filter. Lines that are not valid JSON or not request lines are
// skipped, never fatal; the stream is read once and never buffered whole.
func Parse(r io.Reader, window time.Duration, now time.Time, fn func(Record)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	cutoff := time.Time{}
	if window > 0 {
		cutoff = now.Add(-window)
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		if raw.Message != requestMessage {
			continue
		}

		ts, err := time.Parse("2006-01-02T15:04:05.000Z0700", raw.Timestamp)
		if err != nil {
			// Fall back to plain RFC3339 for hand-written fixtures.
			ts, err = time.Parse(time.RFC3339, raw.Timestamp)
			if err != nil {
				continue
			}
		}
		if !cutoff.IsZero() && ts.Before(cutoff) {
			continue
		}

		fn(Record{
			Timestamp:  ts,
			Level:      raw.Level,
			Message:    raw.Message,
			Status:     raw.Status,
			DurationMS: raw.DurationMS,
			EventType:  raw.EventType,
			CustomerID: raw.CustomerID,
			Error:      raw.Error,
		})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log stream: %w", err)
	}
	return nil
}
