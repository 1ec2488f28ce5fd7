package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockProxy is a plain-HTTP forward proxy that records what passes through it.
type MockProxy struct {
	server *httptest.Server
	mu     sync.RWMutex

	requests  []string
	authLines []string
}

// NewMockProxy starts a forward proxy.
func NewMockProxy() *MockProxy {
	p := &MockProxy{}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

// URL returns the proxy URL.
func (p *MockProxy) URL() string {
	return p.server.URL
}

// Close shuts down the proxy.
func (p *MockProxy) Close() {
	p.server.Close()
}

// Requests returns the absolute URLs that were proxied.
func (p *MockProxy) Requests() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.requests...)
}

// ProxyAuthorizations returns the Proxy-Authorization headers seen.
func (p *MockProxy) ProxyAuthorizations() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.authLines...)
}

func (p *MockProxy) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests = append(p.requests, r.URL.String())
	p.authLines = append(p.authLines, r.Header.Get("Proxy-Authorization"))
	p.mu.Unlock()

	out := r.Clone(r.Context())
	out.RequestURI = ""
	out.Header.Del("Proxy-Authorization")

	resp, err := http.DefaultTransport.RoundTrip(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
