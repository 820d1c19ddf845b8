package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// cachedResponse stores the response fields we care about as JSON on disk.
type cachedResponse struct {
	Status     string              `json:"status"`
	StatusCode int                 `json:"status_code"`
	Proto      string              `json:"proto"`
	Header     map[string][]string `json:"header"`
	Body       []byte              `json:"body"`
}

// CachingRoundTripper implements http.RoundTripper, memoizing responses on
// disk keyed by method, URL and request body. Every GraphQL call POSTs to the
// same URL, so the body hash is what distinguishes queries.
type CachingRoundTripper struct {
	// UnderlyingTransport is used on a cache miss.
	// If nil, http.DefaultTransport is used.
	UnderlyingTransport http.RoundTripper

	// CacheDir is the directory where response files are stored.
	CacheDir string
}

func (c *CachingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := c.UnderlyingTransport
	if transport == nil {
		transport = http.DefaultTransport
	}

	// Read the request body into memory so it can be hashed and then
	// replayed to the underlying transport.
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	// Never cache authentication: tokens expire, and replaying one from
	// disk would poison every later request.
	if bytes.Contains(body, []byte("obtainKrakenToken")) {
		return transport.RoundTrip(req)
	}

	path := c.cacheFilePath(cacheKey(req.Method, req.URL.String(), body))
	if _, err := os.Stat(path); err == nil {
		return loadCachedResponse(path, req)
	}

	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cr := cachedResponse{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Header:     resp.Header.Clone(),
		Body:       respBody,
	}
	if err := saveCachedResponse(path, &cr); err != nil {
		return nil, err
	}

	return buildHTTPResponse(req, cr), nil
}

// cacheKey builds a SHA-256 hash string from method, url and request body.
// Headers are deliberately ignored.
func cacheKey(method, url string, body []byte) string {
	hash := sha256.New()
	hash.Write([]byte(method))
	hash.Write([]byte(url))
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

func (c *CachingRoundTripper) cacheFilePath(key string) string {
	return filepath.Join(c.CacheDir, key+".json")
}

func loadCachedResponse(path string, req *http.Request) (*http.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cr cachedResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, err
	}
	return buildHTTPResponse(req, cr), nil
}

func saveCachedResponse(path string, cr *cachedResponse) error {
	data, err := json.MarshalIndent(cr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func buildHTTPResponse(req *http.Request, cr cachedResponse) *http.Response {
	return &http.Response{
		Status:        cr.Status,
		StatusCode:    cr.StatusCode,
		Proto:         cr.Proto,
		Header:        cr.Header,
		Body:          io.NopCloser(bytes.NewReader(cr.Body)),
		ContentLength: int64(len(cr.Body)),
		Request:       req,
	}
}
