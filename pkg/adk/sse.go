package adk

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Frame is one dispatched server-sent event.
type Frame struct {
	ID    string
	Event string
	Data  string
	Retry int
}

// Reader splits a text/event-stream body into frames.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r in an SSE frame reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next blocks until a complete frame is available. Comment lines (":") are
// skipped and a frame with no data lines is not dispatched. At the end of
// the stream an unterminated frame is discarded and io.EOF is returned.
func (r *Reader) Next() (*Frame, error) {
	var (
		frame   Frame
		data    []string
		hasData bool
	)
	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !hasData {
				frame = Frame{ID: frame.ID}
				continue
			}
			frame.Data = strings.Join(data, "\n")
			return &frame, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			frame.Event = value
		case "id":
			frame.ID = value
		case "retry":
			if n, err := strconv.Atoi(value); err == nil {
				frame.Retry = n
			}
		}
	}
}

// DecodePush parses a frame's data as a PushEvent and stamps it with the
// frame id.
func DecodePush(frame *Frame) (PushEvent, error) {
	var ev PushEvent
	if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
		return PushEvent{}, fmt.Errorf("decode push event: %w", err)
	}
	if ev.Type == "" && frame.Event != "" {
		ev.Type = frame.Event
	}
	ev.ID = frame.ID
	return ev, nil
}
