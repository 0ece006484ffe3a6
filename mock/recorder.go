package mock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// RecordedExchange is one request/response pair captured by a Recorder,
// in a JSON shape stable enough to round-trip through Export/Import.
type RecordedExchange struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	RequestBody []byte      `json:"request_body,omitempty"`
	Status      int         `json:"status"`
	Headers     http.Header `json:"headers"`
	Body        []byte      `json:"body"`
}

// Recorder wraps a RoundTripper and captures every exchange that passes
// through it, so a live session can later be exported and replayed
// through a Registry offline (§4.7's record/export/import/replay cycle).
type Recorder struct {
	base http.RoundTripper
	mu   sync.Mutex
	tape []RecordedExchange
}

// NewRecorder wraps base, recording every exchange that passes through.
func NewRecorder(base http.RoundTripper) *Recorder {
	return &Recorder{base: base}
}

func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	r.mu.Lock()
	r.tape = append(r.tape, RecordedExchange{
		Method:      req.Method,
		URL:         req.URL.String(),
		RequestBody: reqBody,
		Status:      resp.StatusCode,
		Headers:     resp.Header.Clone(),
		Body:        respBody,
	})
	r.mu.Unlock()

	return resp, nil
}

// Tape returns the exchanges recorded so far, in order.
func (r *Recorder) Tape() []RecordedExchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedExchange, len(r.tape))
	copy(out, r.tape)
	return out
}

// Export serializes the recorded tape to JSON.
func (r *Recorder) Export() ([]byte, error) {
	return json.Marshal(r.Tape())
}

// Import loads a previously exported tape, for ReplayRegistry to turn into
// a Registry.
func Import(data []byte) ([]RecordedExchange, error) {
	var tape []RecordedExchange
	if err := json.Unmarshal(data, &tape); err != nil {
		return nil, err
	}
	return tape, nil
}

// ReplayRegistry builds a Registry that replays tape: each exchange
// becomes an exact "METHOD URL" mock returning its recorded response,
// queued in a Sequence so repeated identical requests replay in the
// order they were recorded rather than always returning the first
// match.
func ReplayRegistry(tape []RecordedExchange, preventStray bool) (*Registry, error) {
	reg := New(preventStray)
	bySpec := make(map[string][]Responder)
	var order []string
	for _, ex := range tape {
		spec := ex.Method + " " + ex.URL
		if _, seen := bySpec[spec]; !seen {
			order = append(order, spec)
		}
		bySpec[spec] = append(bySpec[spec], StaticResponse{
			Status:  ex.Status,
			Body:    ex.Body,
			Headers: ex.Headers.Clone(),
		})
	}
	for _, spec := range order {
		if err := reg.Mock(spec, NewSequence(bySpec[spec]...)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
