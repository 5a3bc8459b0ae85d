package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestEncoder_WireFormat(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	if err := enc.Encode(Info("hi")); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(StageDepsInstalled); err != nil {
		t.Fatal(err)
	}
	if err := enc.EncodeError(NewErrorResponse(ErrorDownload)); err != nil {
		t.Fatal(err)
	}

	want := "id: log\ndata: {\"type\":\"Info\",\"log\":\"hi\"}\n\n" +
		"id: stage\ndata: \"deps_installed\"\n\n" +
		"id: error\ndata: {\"error\":\"download\",\"message\":\"Failed to clone the repository.\"}\n\n"
	if got := buf.String(); got != want {
		t.Errorf("wire output =\n%s\nwant\n%s", got, want)
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)
	sent := []Progress{StageStarting, Info("$ echo hi"), Error("warning: x"), StageDeployed}
	for _, p := range sent {
		if err := enc.Encode(p); err != nil {
			t.Fatal(err)
		}
		if err := enc.KeepAlive(); err != nil {
			t.Fatal(err)
		}
	}

	dec := NewDecoder(buf)
	for i, want := range sent {
		ev, err := dec.Next()
		if err != nil {
			t.Fatalf("event %d: Next() error = %v", i, err)
		}
		var got Progress
		switch ev.ID {
		case EventLog:
			got, err = DecodeLog(ev.Data)
		case EventStage:
			got, err = DecodeStage(ev.Data)
		default:
			t.Fatalf("event %d: unexpected id %q", i, ev.ID)
		}
		if err != nil {
			t.Fatalf("event %d: decode error = %v", i, err)
		}
		if got != want {
			t.Errorf("event %d = %#v, want %#v", i, got, want)
		}
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("Next() after last event error = %v, want io.EOF", err)
	}
}

func TestDecoder_ErrorKindsRoundTrip(t *testing.T) {
	t.Parallel()

	for _, kind := range ErrorKinds {
		buf := &bytes.Buffer{}
		if err := NewEncoder(buf).EncodeError(NewErrorResponse(kind)); err != nil {
			t.Fatal(err)
		}
		ev, err := NewDecoder(buf).Next()
		if err != nil {
			t.Fatalf("%s: Next() error = %v", kind, err)
		}
		resp, err := DecodeError(ev.Data)
		if err != nil {
			t.Fatalf("%s: DecodeError() error = %v", kind, err)
		}
		if resp.Error != kind || resp.Message != kind.Message() {
			t.Errorf("%s: decoded %+v", kind, resp)
		}
	}
}

func TestDecoder_Framing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []Event
		wantErr error
	}{
		{
			name:    "multi-line data and CRLF",
			input:   "id: log\r\ndata: a\r\ndata: b\r\n\r\n",
			want:    []Event{{ID: "log", Data: "a\nb"}},
			wantErr: io.EOF,
		},
		{
			name:    "comments and empty frames are skipped",
			input:   ": ping\n\nid: stage\n\nid: stage\ndata:\"starting\"\n\n",
			want:    []Event{{ID: "stage", Data: "\"starting\""}},
			wantErr: io.EOF,
		},
		{
			name:    "truncated frame",
			input:   "id: stage\ndata: \"deployed\"\n",
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "truncated line",
			input:   "id: stage\ndata: \"depl",
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "empty stream",
			input:   "",
			wantErr: io.EOF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder(strings.NewReader(tt.input))
			for i, want := range tt.want {
				got, err := dec.Next()
				if err != nil {
					t.Fatalf("event %d: Next() error = %v", i, err)
				}
				if got != want {
					t.Errorf("event %d = %+v, want %+v", i, got, want)
				}
			}
			if _, err := dec.Next(); err != tt.wantErr {
				t.Errorf("final Next() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_RejectsUnknownValues(t *testing.T) {
	t.Parallel()

	if _, err := DecodeStage(`"teleported"`); err == nil {
		t.Error("DecodeStage() accepted an unknown stage")
	}
	if _, err := DecodeLog(`{"type":"Debug","log":"x"}`); err == nil {
		t.Error("DecodeLog() accepted an unknown level")
	}
	if _, err := DecodeError(`{"error":"meltdown","message":"x"}`); err == nil {
		t.Error("DecodeError() accepted an unknown kind")
	}
}
