package devkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/transport"
)

// HTTPScript is one canned reply of a FakeHTTPDoer.
type HTTPScript struct {
	StatusCode int
	Headers    map[string]string
	Body       string
	Err        error
}

// CapturedRequest is a detached copy of a request sent through FakeHTTPDoer.
type CapturedRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// FakeHTTPDoer replays scripts in order and then repeats the last one.
type FakeHTTPDoer struct {
	mu       sync.Mutex
	scripts  []HTTPScript
	requests []CapturedRequest
}

func NewFakeHTTPDoer(scripts ...HTTPScript) *FakeHTTPDoer {
	return &FakeHTTPDoer{scripts: append([]HTTPScript(nil), scripts...)}
}

func (d *FakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	if d == nil {
		return nil, fmt.Errorf("devkit: fake http doer is nil")
	}
	captured := CapturedRequest{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: req.Header.Clone(),
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		captured.Body = body
	}

	d.mu.Lock()
	d.requests = append(d.requests, captured)
	index := len(d.requests) - 1
	script := HTTPScript{StatusCode: http.StatusOK, Body: "{}"}
	if index < len(d.scripts) {
		script = d.scripts[index]
	} else if len(d.scripts) > 0 {
		script = d.scripts[len(d.scripts)-1]
	}
	d.mu.Unlock()

	if script.Err != nil {
		return nil, script.Err
	}
	status := script.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	header := http.Header{}
	for key, value := range script.Headers {
		header.Set(key, value)
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header,
		Body:       io.NopCloser(bytes.NewBufferString(script.Body)),
		Request:    req,
	}, nil
}

func (d *FakeHTTPDoer) Requests() []CapturedRequest {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]CapturedRequest, 0, len(d.requests))
	for _, item := range d.requests {
		out = append(out, CapturedRequest{
			Method:  item.Method,
			URL:     item.URL,
			Headers: item.Headers.Clone(),
			Body:    append([]byte(nil), item.Body...),
		})
	}
	return out
}

// LastRequest returns the most recent request, if any.
func (d *FakeHTTPDoer) LastRequest() (CapturedRequest, bool) {
	requests := d.Requests()
	if len(requests) == 0 {
		return CapturedRequest{}, false
	}
	return requests[len(requests)-1], true
}

// Form decodes a form-encoded request body.
func (r CapturedRequest) Form() map[string]string {
	values, err := parseForm(r.Body)
	if err != nil {
		return map[string]string{}
	}
	return values
}

func parseForm(body []byte) (map[string]string, error) {
	req, err := http.NewRequest(http.MethodPost, "http://devkit.invalid", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := req.ParseForm(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(req.PostForm))
	for key := range req.PostForm {
		out[strings.TrimSpace(key)] = req.PostForm.Get(key)
	}
	return out, nil
}

var _ transport.HTTPDoer = (*FakeHTTPDoer)(nil)
