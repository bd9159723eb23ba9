// Package sse decodes the text/event-stream envelope of the agent activity
// stream into frames.
package sse

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoder turns arbitrarily split byte chunks into frames.
// It keeps only the unterminated tail of the current line plus the fields of
// the frame being assembled. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf       []byte
	event     string
	data      []string
	hasData   bool
	started   bool
	dropped   int
	malformed func(label agent.EventType, err error)
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// OnMalformed registers a callback for frames dropped because their payload
// failed validation. Used for diagnostics only.
func (d *Decoder) OnMalformed(fn func(label agent.EventType, err error)) {
	d.malformed = fn
}

// Dropped returns how many frames were discarded as malformed.
func (d *Decoder) Dropped() int { return d.dropped }

// Feed consumes one chunk and returns the frames it completed, in order.
// The chunk is copied; callers may reuse it.
func (d *Decoder) Feed(chunk []byte) []agent.Frame {
	d.buf = append(d.buf, chunk...)
	if !d.started {
		if len(d.buf) < len(utf8BOM) && bytes.HasPrefix(utf8BOM, d.buf) {
			return nil
		}
		d.buf = bytes.TrimPrefix(d.buf, utf8BOM)
		d.started = true
	}

	var frames []agent.Frame
	for {
		line, ok := d.nextLine()
		if !ok {
			break
		}
		if f, ok := d.processLine(line); ok {
			frames = append(frames, f)
		}
	}
	d.compact()
	return frames
}

// Flush is called once the transport has ended. A line held back only for
// its trailing CR still counts as a line. An unterminated line and a frame
// whose blank-line terminator never arrived are discarded.
func (d *Decoder) Flush() []agent.Frame {
	var frames []agent.Frame
	if n := len(d.buf); n > 0 && d.buf[n-1] == '\r' {
		if f, ok := d.processLine(string(d.buf[:n-1])); ok {
			frames = append(frames, f)
		}
	}
	if len(d.buf) > 0 || d.hasData {
		slog.Debug("discarding unterminated frame at end of stream", "type", d.event, "bytes", len(d.buf))
	}
	d.buf = nil
	d.event = ""
	d.data = d.data[:0]
	d.hasData = false
	return frames
}

// nextLine pops one complete line off the buffer. A trailing CR is held back
// until the next byte shows whether it starts a CRLF pair.
func (d *Decoder) nextLine() (string, bool) {
	i := bytes.IndexAny(d.buf, "\r\n")
	if i < 0 {
		return "", false
	}
	skip := 1
	if d.buf[i] == '\r' {
		if i+1 == len(d.buf) {
			return "", false
		}
		if d.buf[i+1] == '\n' {
			skip = 2
		}
	}
	line := string(d.buf[:i])
	d.buf = d.buf[i+skip:]
	return line, true
}

// compact drops the consumed prefix so the backing array does not pin the
// whole stream.
func (d *Decoder) compact() {
	if len(d.buf) == 0 {
		d.buf = nil
		return
	}
	if cap(d.buf) > 2*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}
}

func (d *Decoder) processLine(line string) (agent.Frame, bool) {
	if line == "" {
		return d.dispatch()
	}
	if line[0] == ':' {
		return agent.Frame{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		d.event = value
	case "data":
		d.data = append(d.data, value)
		d.hasData = true
	}
	// id and retry carry no meaning for this protocol
	return agent.Frame{}, false
}

func (d *Decoder) dispatch() (agent.Frame, bool) {
	label := agent.EventType(d.event)
	data := strings.Join(d.data, "\n")
	hasData := d.hasData

	d.event = ""
	d.data = d.data[:0]
	d.hasData = false

	if !hasData {
		return agent.Frame{}, false
	}
	if label == "" {
		label = agent.DefaultEventType
	}

	payload, err := agent.ParsePayload(label, []byte(data))
	if err != nil {
		d.dropped++
		slog.Debug("dropping malformed frame", "type", label, "error", err)
		if d.malformed != nil {
			d.malformed(label, err)
		}
		return agent.Frame{}, false
	}

	return agent.Frame{Type: label, Payload: payload, Raw: json.RawMessage(data)}, true
}
