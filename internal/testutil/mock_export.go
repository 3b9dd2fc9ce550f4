// Package testutil provides testing utilities for the export client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// PageScript defines the behavior for one mock export response. Responses
// are served in script order, one per request, the last script repeating
// once the sequence is exhausted.
type PageScript struct {
	// Rows to serve, when RawBody is empty.
	Rows []map[string]any

	// Partial flag; nil omits the field entirely from the body.
	Partial *bool

	// Reason accompanies a partial page.
	Reason string

	// RowCount reported for the range; nil omits the field.
	RowCount *int64

	// NextPageToken switches the client to cursor pagination.
	NextPageToken string

	// StatusCode defaults to 200.
	StatusCode int

	// RawBody overrides the generated JSON body when non-empty.
	RawBody string

	// Headers are extra response headers (e.g. Retry-After).
	Headers map[string]string

	// Delay before responding.
	Delay time.Duration
}

// MockExport is a scriptable mock export service for testing.
type MockExport struct {
	server *httptest.Server

	mu          sync.Mutex
	scripts     []PageScript
	handler     http.HandlerFunc
	requests    int
	lastQuery   url.Values
	lastHeader  http.Header
	lastRequest *http.Request
}

// NewMockExport creates a mock server that serves the given pages in order.
func NewMockExport(scripts ...PageScript) *MockExport {
	mock := &MockExport{scripts: scripts}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		index := mock.requests
		mock.requests++
		mock.lastQuery = r.URL.Query()
		mock.lastHeader = r.Header.Clone()
		mock.lastRequest = r
		custom := mock.handler
		mock.mu.Unlock()

		if custom != nil {
			custom(w, r)
			return
		}

		mock.serveScript(w, index)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockExport) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockExport) Close() {
	m.server.Close()
}

// SetHandler replaces scripted responses with a custom handler.
func (m *MockExport) SetHandler(handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// RequestCount returns the number of requests received.
func (m *MockExport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockExport) LastQuery() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// LastHeader returns the headers of the most recent request.
func (m *MockExport) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// Reset clears request tracking.
func (m *MockExport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = 0
	m.lastQuery = nil
	m.lastHeader = nil
}

func (m *MockExport) serveScript(w http.ResponseWriter, index int) {
	m.mu.Lock()
	var script PageScript
	switch {
	case len(m.scripts) == 0:
		script = NewCompletePage(nil)
	case index < len(m.scripts):
		script = m.scripts[index]
	default:
		script = m.scripts[len(m.scripts)-1]
	}
	m.mu.Unlock()

	if script.Delay > 0 {
		time.Sleep(script.Delay)
	}

	for key, value := range script.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json")

	status := script.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if script.RawBody != "" {
		w.Write([]byte(script.RawBody))
		return
	}

	w.Write(script.body())
}

// body renders the scripted page as an export response body.
func (s PageScript) body() []byte {
	payload := map[string]any{}

	rows := s.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	payload["rows"] = rows

	if s.Partial != nil {
		payload["partial"] = *s.Partial
	}
	if s.Reason != "" {
		payload["reason"] = s.Reason
	}
	if s.RowCount != nil {
		payload["rowCount"] = *s.RowCount
	}
	if s.NextPageToken != "" {
		payload["nextPageToken"] = s.NextPageToken
	}

	data, _ := json.Marshal(payload)
	return data
}

// NewCompletePage creates a complete (partial=false) page.
func NewCompletePage(rows []map[string]any) PageScript {
	complete := false
	return PageScript{Rows: rows, Partial: &complete, StatusCode: http.StatusOK}
}

// NewPartialPage creates a page flagged as partial.
func NewPartialPage(rows []map[string]any, reason string) PageScript {
	partial := true
	return PageScript{Rows: rows, Partial: &partial, Reason: reason, StatusCode: http.StatusOK}
}

// NewThrottledPage creates a 429 response with a Retry-After header.
func NewThrottledPage(retryAfterSeconds string) PageScript {
	return PageScript{
		StatusCode: http.StatusTooManyRequests,
		RawBody:    `{"error": "throttled"}`,
		Headers:    map[string]string{"Retry-After": retryAfterSeconds},
	}
}

// NewServerErrorPage creates a 502 response.
func NewServerErrorPage() PageScript {
	return PageScript{
		StatusCode: http.StatusBadGateway,
		RawBody:    `{"error": "upstream timeout"}`,
	}
}
