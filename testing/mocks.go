package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockRemote is a fake content-distribution origin: it can serve the
// releases API, published hash files, package archives, and gameinfo
// payloads, and it records every request it receives so tests can
// assert mirror-order and retry behavior.
type MockRemote struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []MockRequest
}

// MockResponse holds response data for a path
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

// MockRequest records a request made to the mock server
type MockRequest struct {
	Method string
	Path   string
}

// NewMockRemote creates a mock distribution server. Unconfigured paths
// return 404.
func NewMockRemote(t *testing.T) *MockRemote {
	t.Helper()

	mock := &MockRemote{
		responses: make(map[string]MockResponse),
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, MockRequest{
			Method: r.Method,
			Path:   r.URL.Path,
		})
		response, ok := mock.responses[r.URL.Path]
		mock.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"message": "Not Found",
			})
			return
		}

		for key, value := range response.Headers {
			w.Header().Set(key, value)
		}
		if response.StatusCode != 0 {
			w.WriteHeader(response.StatusCode)
		}
		w.Write(response.Body)
	}))

	t.Cleanup(func() {
		mock.Server.Close()
	})

	return mock
}

// SetRawResponse sets a raw response for a path
func (m *MockRemote) SetRawResponse(path string, statusCode int, body []byte, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = MockResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers:    headers,
	}
}

// SetError sets an error response for a path
func (m *MockRemote) SetError(path string, statusCode int, message string) {
	body, _ := json.Marshal(map[string]string{"message": message})
	m.SetRawResponse(path, statusCode, body, map[string]string{
		"Content-Type": "application/json",
	})
}

// ServeRelease publishes a latest-release record with one downloadable
// asset pointing back at this server.
func (m *MockRemote) ServeRelease(apiPath, tag, assetName, assetPath string) {
	body := fmt.Sprintf(`{"tag_name":%q,"assets":[{"name":%q,"browser_download_url":%q}]}`,
		tag, assetName, m.URL+assetPath)
	m.SetRawResponse(apiPath, http.StatusOK, []byte(body), map[string]string{
		"Content-Type": "application/json",
	})
}

// ServeHash publishes a plaintext hash record.
func (m *MockRemote) ServeHash(path, hash string) {
	m.SetRawResponse(path, http.StatusOK, []byte(hash+"\n"), nil)
}

// ServeArchive publishes a package archive.
func (m *MockRemote) ServeArchive(path string, archive []byte) {
	m.SetRawResponse(path, http.StatusOK, archive, map[string]string{
		"Content-Type": "application/zip",
	})
}

// GetRequestCount returns the number of requests made to a path
func (m *MockRemote) GetRequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.requests {
		if req.Path == path {
			count++
		}
	}
	return count
}

// ClearRequests clears the recorded requests
func (m *MockRemote) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}
