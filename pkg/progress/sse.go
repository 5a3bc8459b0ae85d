package progress

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	// EventLog identifies events carrying a Log payload.
	EventLog = "log"
	// EventStage identifies events carrying a Stage payload.
	EventStage = "stage"
	// EventError identifies events carrying an ErrorResponse payload.
	EventError = "error"
)

// Event is a single message of the event stream.
type Event struct {
	ID   string
	Data string
}

// Encoder writes progress events in the text/event-stream format.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes a log or stage event.
func (e *Encoder) Encode(p Progress) error {
	switch v := p.(type) {
	case Log:
		return e.writeJSON(EventLog, v)
	case Stage:
		return e.writeJSON(EventStage, v)
	}
	return fmt.Errorf("progress: cannot encode %T", p)
}

// EncodeError writes an error event.
func (e *Encoder) EncodeError(r ErrorResponse) error {
	return e.writeJSON(EventError, r)
}

// KeepAlive writes a comment that keeps idle connections open.
func (e *Encoder) KeepAlive() error {
	_, err := io.WriteString(e.w, ": keep-alive\n\n")
	return err
}

func (e *Encoder) writeJSON(id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return e.Write(Event{ID: id, Data: string(data)})
}

// Write writes a raw event.
func (e *Encoder) Write(ev Event) error {
	var b strings.Builder
	b.WriteString("id: ")
	b.WriteString(ev.ID)
	b.WriteString("\n")
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(e.w, b.String())
	return err
}

// Decoder reads events in the text/event-stream format.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event. It returns io.EOF when the stream ends between events and
// io.ErrUnexpectedEOF when it ends in the middle of one.
func (d *Decoder) Next() (Event, error) {
	var ev Event
	var data []string
	var pending bool
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF && pending {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if err == io.EOF && pending {
				return Event{}, io.ErrUnexpectedEOF
			}
			if len(data) == 0 {
				ev, pending = Event{}, false
				continue
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "id":
			ev.ID = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		}
		if err == io.EOF {
			return Event{}, io.ErrUnexpectedEOF
		}
	}
}

// DecodeLog decodes the payload of a log event.
func DecodeLog(data string) (Log, error) {
	var l Log
	err := json.Unmarshal([]byte(data), &l)
	return l, err
}

// DecodeStage decodes the payload of a stage event.
func DecodeStage(data string) (Stage, error) {
	var s Stage
	err := json.Unmarshal([]byte(data), &s)
	return s, err
}

// DecodeError decodes the payload of an error event.
func DecodeError(data string) (ErrorResponse, error) {
	var r ErrorResponse
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return r, err
	}
	if _, ok := ParseErrorKind(string(r.Error)); !ok {
		return r, fmt.Errorf("unknown error kind %q", r.Error)
	}
	return r, nil
}
