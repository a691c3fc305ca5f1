package stream

import (
	"bufio"
	"io"
	"strings"
)

// frameReader splits a text/event-stream body into data payloads. Lines
// prefixed "data:" accumulate, a blank line dispatches, comment lines and
// other fields are skipped.
type frameReader struct {
	r    *bufio.Reader
	data []string
	has  bool
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 16*1024)}
}

// Next returns the next complete data payload. A trailing frame without
// its blank-line terminator is discarded at EOF.
func (f *frameReader) Next() (string, error) {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			// A partial final line never dispatches.
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !f.has {
				continue
			}
			payload := strings.Join(f.data, "\n")
			f.data = f.data[:0]
			f.has = false
			return payload, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "data":
			f.data = append(f.data, value)
			f.has = true
		case "event", "id", "retry":
			// Accepted and ignored: the payload carries its own type tag.
		}
	}
}
