package sse

import (
	"bufio"
	"bytes"
	"io"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
)

// Encode writes a frame in text/event-stream form, one data line per line of
// the payload.
func Encode(w io.Writer, f agent.Frame) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("event: ")
	bw.WriteString(string(f.Type))
	bw.WriteByte('\n')

	data := f.ToRecord().Data
	for _, line := range bytes.Split(data, []byte("\n")) {
		bw.WriteString("data: ")
		bw.Write(bytes.TrimSuffix(line, []byte("\r")))
		bw.WriteByte('\n')
	}
	bw.WriteByte('\n')
	return bw.Flush()
}
