// Package sse encodes and decodes Server-Sent Events for the live progress
// feed of a running analysis. The server side writes events with
// Event.WriteTo; clients read them back with a Reader.
//
// See https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"io"
	"strings"
)

// Event is one SSE event, terminated by a blank line on the wire.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data holds every "data:" line of the event joined with "\n".
	Data string

	ID string
}

// WriteTo encodes e in SSE framing. A multi-line Data is split across
// several data fields so that a Reader joins it back unchanged.
func (e *Event) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString("id: " + e.ID + "\n")
	}
	if e.Type != "" {
		b.WriteString("event: " + e.Type + "\n")
	}
	for line := range strings.SplitSeq(e.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// WriteComment writes a comment line, which readers skip. Servers use it as
// a keep-alive.
func WriteComment(w io.Writer, text string) error {
	_, err := io.WriteString(w, ": "+text+"\n\n")
	return err
}
