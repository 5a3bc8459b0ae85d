package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/beldeveloper/orbit/pkg/progress"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// UserAgent is sent with every request to the server.
const UserAgent = "orbit-cli"

var (
	// ErrSiteNotFound is returned when the server does not know the site.
	ErrSiteNotFound = errors.New("site not found")
	// ErrUnauthorized is returned when the server rejects the token.
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is returned when the server responds with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected response status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected response status %d: %s", e.StatusCode, e.Body)
}

// DeployError is the failure reported by the server for the deployment.
type DeployError struct {
	Kind    progress.ErrorKind
	Message string
}

func (e *DeployError) Error() string {
	return e.Message
}

// DecodeError is returned when a message of the stream cannot be understood.
type DecodeError struct {
	ID   string
	Data string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unknown event %q: %s", e.ID, e.Data)
	}
	return fmt.Sprintf("malformed %s event: %v: %s", e.ID, e.Err, e.Data)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Client talks to the deployment server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client of the server at baseURL. A nil http.Client means http.DefaultClient.
func New(baseURL string, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    hc,
	}
}

// Deploy triggers the deployment of the site and opens its progress stream. An empty ref means the
// default branch of the repository.
func (c *Client) Deploy(ctx context.Context, slug string, ref string) (*Stream, error) {
	u := c.baseURL + "/sites/" + url.PathEscape(slug) + "/deploy"
	if ref != "" {
		u += "?" + url.Values{"ref": {ref}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("deploy -> cannot create request: %w; site=%s", err, slug)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", UserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deploy -> request failed: %w; site=%s", err, slug)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrSiteNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return NewStream(resp.Body), nil
}

// Stream is the progress of a deployment as received from the server.
type Stream struct {
	body     io.ReadCloser
	dec      *progress.Decoder
	deployed bool
	err      error
}

// NewStream reads the progress events from body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, dec: progress.NewDecoder(body)}
}

// Next returns the next progress event. It returns io.EOF once the deployment went live,
// a *DeployError when the server reports a failure, a *DecodeError for messages it cannot
// understand and io.ErrUnexpectedEOF when the stream ends before the deployment finished.
// Once Next returns an error it keeps returning the same error.
func (s *Stream) Next() (progress.Progress, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, err := s.next()
	if err != nil {
		s.err = err
		s.body.Close()
	}
	return p, err
}

func (s *Stream) next() (progress.Progress, error) {
	ev, err := s.dec.Next()
	if err == io.EOF {
		if s.deployed {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	s.deployed = false
	switch ev.ID {
	case progress.EventLog:
		l, err := progress.DecodeLog(ev.Data)
		if err != nil {
			return nil, &DecodeError{ID: ev.ID, Data: ev.Data, Err: err}
		}
		return l, nil
	case progress.EventStage:
		st, err := progress.DecodeStage(ev.Data)
		if err != nil {
			return nil, &DecodeError{ID: ev.ID, Data: ev.Data, Err: err}
		}
		s.deployed = st == progress.StageDeployed
		return st, nil
	case progress.EventError:
		res, err := progress.DecodeError(ev.Data)
		if err != nil {
			return nil, &DecodeError{ID: ev.ID, Data: ev.Data, Err: err}
		}
		return nil, remoteError(res)
	}
	return nil, &DecodeError{ID: ev.ID, Data: ev.Data}
}

// remoteError maps the payload of an error event to the error returned by Next.
func remoteError(res progress.ErrorResponse) *DeployError {
	msg := strings.TrimSpace(res.Message)
	if msg == "" {
		msg = res.Error.Message()
	}
	return &DeployError{Kind: res.Error, Message: msg}
}

// Close releases the connection. The deployment keeps running on the server.
func (s *Stream) Close() error {
	return s.body.Close()
}
