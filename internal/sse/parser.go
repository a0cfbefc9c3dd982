// Package sse parses server-sent-event completion streams into typed events.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// MaxLineBytes bounds how much of a single line is buffered before the
// line is reported as malformed.
const MaxLineBytes = 1 << 20

const (
	dataPrefix  = "data:"
	doneMarker  = "[DONE]"
	readBufSize = 16 * 1024
)

// EventKind identifies what a stream line carried.
type EventKind int

const (
	EventContent   EventKind = iota + 1 // data: <json>
	EventDone                           // data: [DONE]
	EventMalformed                      // anything else that is not blank
)

func (k EventKind) String() string {
	switch k {
	case EventContent:
		return "content"
	case EventDone:
		return "done"
	case EventMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Event is one parsed stream line.
type Event struct {
	Kind         EventKind
	Text         string // generated text, may be empty on control chunks
	FinishReason string
	Raw          string // original line, set for EventMalformed
}

// chunk covers both the completions and chat-completions chunk shapes.
type chunk struct {
	Choices []struct {
		Text  string `json:"text"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Parser turns a byte stream into Events. It buffers partial lines until a
// terminator arrives. A Parser serves a single stream and is not safe for
// concurrent use.
type Parser struct {
	r         *bufio.Reader
	done      bool
	malformed int
	line      []byte
	err       error // read error held back until pending events are returned
}

// NewParser returns a parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReaderSize(r, readBufSize)}
}

// Done reports whether the [DONE] sentinel has been seen.
func (p *Parser) Done() bool { return p.done }

// Malformed returns the number of malformed lines skipped so far.
func (p *Parser) Malformed() int { return p.malformed }

// Next returns the next event. It returns io.EOF once the sentinel has been
// consumed or the peer closed the stream; callers distinguish the two with
// Done. Any other error comes from the underlying reader.
func (p *Parser) Next() (Event, error) {
	for {
		if p.done {
			return Event{}, io.EOF
		}
		if p.err != nil {
			return Event{}, p.err
		}

		line, oversized, err := p.readLine()
		p.err = err
		if oversized {
			return p.malformedEvent(nil), nil
		}
		if ev, ok := p.parseLine(line); ok {
			return ev, nil
		}
	}
}

// readLine returns one line without its terminator. Oversized lines are
// drained and discarded.
func (p *Parser) readLine() ([]byte, bool, error) {
	p.line = p.line[:0]
	oversized := false

	for {
		frag, err := p.r.ReadSlice('\n')
		if !oversized {
			if len(p.line)+len(frag) > MaxLineBytes {
				oversized = true
				p.line = p.line[:0]
			} else {
				p.line = append(p.line, frag...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if oversized {
			return nil, true, err
		}
		return bytes.TrimRight(p.line, "\r\n"), false, err
	}
}

// parseLine classifies a single line. Blank lines yield no event.
func (p *Parser) parseLine(line []byte) (Event, bool) {
	if len(bytes.TrimSpace(line)) == 0 {
		return Event{}, false
	}

	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return p.malformedEvent(line), true
	}

	payload := line[len(dataPrefix):]
	payload = bytes.TrimPrefix(payload, []byte(" "))

	if string(bytes.TrimSpace(payload)) == doneMarker {
		p.done = true
		return Event{Kind: EventDone}, true
	}

	var c chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		return p.malformedEvent(line), true
	}

	ev := Event{Kind: EventContent}
	if len(c.Choices) > 0 {
		choice := c.Choices[0]
		ev.Text = choice.Text
		if ev.Text == "" && choice.Delta != nil {
			ev.Text = choice.Delta.Content
		}
		if choice.FinishReason != nil {
			ev.FinishReason = *choice.FinishReason
		}
	}
	return ev, true
}

func (p *Parser) malformedEvent(line []byte) Event {
	p.malformed++
	return Event{Kind: EventMalformed, Raw: string(line)}
}
