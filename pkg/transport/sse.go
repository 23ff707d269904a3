package transport

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event.
type sseEvent struct {
	Type string
	Data string
}

// sseReader parses a text/event-stream body. A blank line ends an event;
// multiple data lines are joined with newlines and comments are skipped.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	// Tool outputs carry whole clip lists in one data line
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &sseReader{scanner: scanner}
}

// Next returns the next event, or io.EOF when the body ends.
func (r *sseReader) Next() (sseEvent, error) {
	var (
		eventType string
		data      []string
		seen      bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if seen {
				return sseEvent{Type: eventType, Data: strings.Join(data, "\n")}, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	if seen {
		return sseEvent{Type: eventType, Data: strings.Join(data, "\n")}, nil
	}
	return sseEvent{}, io.EOF
}
