package eventsource

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

const maxLineSize = 1 << 20

// lineEvent is one JSON line as written by the platform agent. The type may
// be a numeric code or a platform name; the timestamp may be epoch
// milliseconds or an RFC 3339 string.
type lineEvent struct {
	Package   string          `json:"package"`
	Type      json.RawMessage `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	Class     string          `json:"class"`
}

// ReadJSONLines parses raw events, one JSON object per line. Blank lines are
// skipped; the first malformed line aborts with its line number.
func ReadJSONLines(r io.Reader) ([]storage.RawEvent, error) {
	var events []storage.RawEvent
	err := scanLines(r, func(line int, event storage.RawEvent, err error) error {
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, event)
		return nil
	})
	return events, err
}

// scanLines calls fn for every non-blank line. Returning an error stops the scan.
func scanLines(r io.Reader, fn func(line int, event storage.RawEvent, err error) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		event, err := parseLine(data)
		if err := fn(line, event, err); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func parseLine(data []byte) (storage.RawEvent, error) {
	var le lineEvent
	if err := json.Unmarshal(data, &le); err != nil {
		return storage.RawEvent{}, err
	}
	if le.Package == "" {
		return storage.RawEvent{}, fmt.Errorf("missing package")
	}

	rawType, err := parseType(le.Type)
	if err != nil {
		return storage.RawEvent{}, err
	}

	ts, err := parseTimestamp(le.Timestamp)
	if err != nil {
		return storage.RawEvent{}, err
	}

	return storage.RawEvent{
		AppKey:    le.Package,
		Type:      int(rawType),
		Timestamp: ts,
		Class:     le.Class,
	}, nil
}

func parseType(raw json.RawMessage) (RawType, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing type")
	}
	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		return RawType(code), nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return 0, fmt.Errorf("invalid type: %s", raw)
	}
	if t, ok := ParseRawType(name); ok {
		return t, nil
	}
	if code, err := strconv.Atoi(name); err == nil {
		return RawType(code), nil
	}
	return 0, fmt.Errorf("unknown type: %s", name)
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %s", raw)
	}
	ts, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return ts, nil
}
