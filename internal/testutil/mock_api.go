// Package testutil provides testing utilities for the Ashby client stack.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RPCHandler answers an RPC from its decoded JSON parameters.
type RPCHandler func(params map[string]any) MockResponse

// MockAPI is a configurable mock Ashby server for testing. Every RPC is a
// POST to /{endpoint}; handlers are keyed by that path.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requests          map[string]int
	params            map[string][]map[string]any
}

// NewMockAPI creates a new mock Ashby server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		requests: make(map[string]int),
		params:   make(map[string][]map[string]any),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		var params map[string]any
		if len(body) > 0 {
			_ = json.Unmarshal(body, &params)
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.requests[r.URL.Path]++
		mock.params[r.URL.Path] = append(mock.params[r.URL.Path], params)
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requests = make(map[string]int)
	m.params = make(map[string][]map[string]any)
}

// SetHandler sets a custom handler for an endpoint ("job.list") or a path
// ("/files/a.pdf").
func (m *MockAPI) SetHandler(endpoint string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pathFor(endpoint)] = handler
}

// SetResponse configures a fixed response for an endpoint.
func (m *MockAPI) SetResponse(endpoint string, resp MockResponse) {
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence answers successive calls with successive responses. The last
// response repeats once the sequence is used up.
func (m *MockAPI) SetSequence(endpoint string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[len(responses)-1]
		if next < len(responses) {
			resp = responses[next]
		}
		next++
		mu.Unlock()

		writeResponse(w, resp)
	})
}

// SetRPC answers an endpoint from the decoded request parameters.
func (m *MockAPI) SetRPC(endpoint string, handler RPCHandler) {
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			params = map[string]any{}
		}
		writeResponse(w, handler(params))
	})
}

// SetFile serves data at path for plain GET downloads and returns its URL.
func (m *MockAPI) SetFile(path string, data []byte) string {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	})
	return m.server.URL + pathFor(path)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// RequestsFor returns the number of requests made to an endpoint.
func (m *MockAPI) RequestsFor(endpoint string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[pathFor(endpoint)]
}

// ParamsFor returns the decoded request bodies sent to an endpoint, in order.
func (m *MockAPI) ParamsFor(endpoint string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]any, len(m.params[pathFor(endpoint)]))
	copy(out, m.params[pathFor(endpoint)])
	return out
}

// defaultHandler rejects unknown endpoints the way Ashby does.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, NewFailureResponse("unknown endpoint "+r.URL.Path))
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	statusCode := resp.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	w.WriteHeader(statusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func pathFor(endpoint string) string {
	if strings.HasPrefix(endpoint, "/") {
		return endpoint
	}
	return "/" + endpoint
}

// Envelope builds a JSON envelope body.
func Envelope(success bool, results any, moreData bool, nextCursor string) string {
	env := map[string]any{"success": success}
	if results != nil {
		env["results"] = results
	}
	if moreData {
		env["moreDataAvailable"] = true
	}
	if nextCursor != "" {
		env["nextCursor"] = nextCursor
	}
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return string(data)
}

var jsonHeaders = map[string]string{"Content-Type": "application/json; charset=utf-8"}

// NewSuccessResponse creates a 200 OK envelope carrying results.
func NewSuccessResponse(results any) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       Envelope(true, results, false, ""),
		Headers:    jsonHeaders,
	}
}

// NewPageResponse creates a 200 OK page of a paginated listing.
func NewPageResponse(results any, moreData bool, nextCursor string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       Envelope(true, results, moreData, nextCursor),
		Headers:    jsonHeaders,
	}
}

// NewFailureResponse creates a 200 OK envelope with success:false.
func NewFailureResponse(message string) MockResponse {
	body, _ := json.Marshal(map[string]any{"success": false, "errors": []string{message}})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    jsonHeaders,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response. An empty
// retryAfter omits the header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    jsonHeaders,
	}
}

// NewEmptyResponse creates a 200 OK response without a body.
func NewEmptyResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusOK}
}

// NewInvalidJSONResponse creates a 200 OK response whose body is not JSON.
func NewInvalidJSONResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html>gateway hiccup</html>",
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}
