package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// HTTPError is a non-2xx response. Body holds the decoded error document
// when the server sent one.
type HTTPError struct {
	StatusCode int
	Body       map[string]any
}

func (e *HTTPError) Error() string {
	if reason := errorReason(e.Body); reason != "" {
		return fmt.Sprintf("opensearch returned status %d: %s", e.StatusCode, reason)
	}
	return fmt.Sprintf("opensearch returned status %d", e.StatusCode)
}

// retryable reports whether another host may answer differently.
func (e *HTTPError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusRequestTimeout
}

func errorReason(body map[string]any) string {
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		if s, ok := body["error"].(string); ok {
			return s
		}
		return ""
	}
	reason, _ := errObj["reason"].(string)
	return reason
}

// TransportError is a request that never produced a usable response.
type TransportError struct {
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("opensearch request to %s failed: %v", e.Host, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type host struct {
	baseURL string
	client  *http.Client
	auth    Authenticator
}

// request sends body as JSON and decodes a JSON object response.
func (h *host) request(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode opensearch request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if h.auth != nil {
		h.auth.Apply(req)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &TransportError{Host: h.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		parsed, _ := h.decode(resp)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: parsed}
	}
	return h.decode(resp)
}

func (h *host) decode(resp *http.Response) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.EqualFold(mediaType, "application/json") {
		return nil, &TransportError{Host: h.baseURL, Err: fmt.Errorf("response is not JSON: %q", mediaType)}
	}

	var out map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, &TransportError{Host: h.baseURL, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out == nil {
		return nil, &TransportError{Host: h.baseURL, Err: fmt.Errorf("response is not a JSON object")}
	}
	return out, nil
}
