// Package opensearch is a search driver for OpenSearch and compatible
// clusters. Models are indexed as documents in an index named after the
// model; searches take a raw query DSL body.
package opensearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/query"
)

// DriverID is the id used when none is given.
const DriverID = "opensearch"

// DefaultMaxRetries is the number of hosts tried per request.
const DefaultMaxRetries = 3

// Driver indexes, fetches and searches models over the REST API.
type Driver struct {
	id         string
	hosts      []*host
	client     *http.Client
	auth       Authenticator
	maxRetries int
	logger     smartermodel.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithID overrides DriverID.
func WithID(id string) Option {
	return func(d *Driver) { d.id = id }
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.client = c }
}

// WithAuthenticator adds credentials to every request.
func WithAuthenticator(a Authenticator) Option {
	return func(d *Driver) { d.auth = a }
}

// WithMaxRetries sets how many attempts a request gets across hosts.
func WithMaxRetries(n int) Option {
	return func(d *Driver) { d.maxRetries = n }
}

// WithLogger logs retried requests.
func WithLogger(logger smartermodel.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// New creates a driver for the given base URLs, such as
// "https://search-1:9200".
func New(hosts []string, opts ...Option) (*Driver, error) {
	if len(hosts) == 0 {
		return nil, smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
			"reason": "opensearch needs at least one host",
		})
	}
	d := &Driver{
		id:         DriverID,
		client:     http.DefaultClient,
		maxRetries: DefaultMaxRetries,
		logger:     &smartermodel.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxRetries < 1 {
		d.maxRetries = 1
	}
	for _, h := range hosts {
		if _, err := url.ParseRequestURI(h); err != nil {
			return nil, smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
				"host":  h,
				"error": err.Error(),
			})
		}
		d.hosts = append(d.hosts, &host{
			baseURL: strings.TrimSuffix(h, "/"),
			client:  d.client,
			auth:    d.auth,
		})
	}
	return d, nil
}

func (d *Driver) ID() string { return d.id }

func (d *Driver) Get(ctx context.Context, desc *smartermodel.Descriptor, id string) (smartermodel.Model, error) {
	resp, err := d.request(ctx, http.MethodGet, path(desc.Name, "_doc", id), nil)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	row, err := documentRow(desc, resp)
	if err != nil {
		return nil, err
	}
	return desc.Decode(row)
}

func (d *Driver) Save(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	row, err := desc.Encode(m)
	if err != nil {
		return err
	}
	_, err = d.request(ctx, http.MethodPut, path(desc.Name, "_doc", m.GetID()), row)
	return err
}

// Delete removes the document. A missing document is not an error.
func (d *Driver) Delete(ctx context.Context, desc *smartermodel.Descriptor, m smartermodel.Model) error {
	_, err := d.request(ctx, http.MethodDelete, path(desc.Name, "_doc", m.GetID()), nil)
	if err != nil && statusCode(err) != http.StatusNotFound {
		return err
	}
	return nil
}

// Search posts req.Body to the model's _search endpoint.
func (d *Driver) Search(ctx context.Context, desc *smartermodel.Descriptor, req *smartermodel.SearchRequest) (*smartermodel.SearchResult, error) {
	resp, err := d.request(ctx, http.MethodPost, path(desc.Name, "_search"), req.Body)
	if err != nil {
		return nil, err
	}

	hitsObj, ok := resp["hits"].(map[string]any)
	if !ok {
		return nil, invalidResponse("response has no hits object")
	}
	hits, ok := hitsObj["hits"].([]any)
	if !ok {
		return nil, invalidResponse("response has no hits list")
	}

	result := &smartermodel.SearchResult{Success: true}
	if took, ok := intValue(resp["took"]); ok {
		result.Took = time.Duration(took) * time.Millisecond
	}
	if total, ok := hitsObj["total"].(map[string]any); ok {
		if v, ok := intValue(total["value"]); ok {
			result.TotalCount = &v
		}
		switch total["relation"] {
		case "eq":
			result.Relation = smartermodel.RelationEqual
		case "gte":
			result.Relation = smartermodel.RelationGreaterOrEqual
		}
	}

	for _, h := range hits {
		doc, ok := h.(map[string]any)
		if !ok {
			return nil, invalidResponse("hit is not an object")
		}
		row, err := documentRow(desc, doc)
		if err != nil {
			return nil, err
		}
		m, err := desc.Decode(row)
		if err != nil {
			return nil, err
		}
		result.Models = append(result.Models, m)
	}
	return result, nil
}

// request tries hosts round-robin from a random start. Transport
// failures, 404, 408 and 5xx responses move on to the next host.
func (d *Driver) request(ctx context.Context, method, p string, body any) (map[string]any, error) {
	offset := rand.IntN(len(d.hosts))
	var lastErr error
	for i := 0; i < d.maxRetries; i++ {
		h := d.hosts[(offset+i)%len(d.hosts)]
		resp, err := h.request(ctx, method, p, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		var (
			transport *TransportError
			httpErr   *HTTPError
		)
		switch {
		case errors.As(err, &transport):
		case errors.As(err, &httpErr) && httpErr.retryable():
		default:
			return nil, err
		}
		d.logger.Debug("opensearch request failed, retrying",
			"driver", d.id, "host", h.baseURL, "method", method, "path", p, "error", err)
	}
	return nil, classify(lastErr)
}

func classify(err error) error {
	var transport *TransportError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return smartermodel.WithContext(smartermodel.ErrTimeout, map[string]interface{}{"error": err.Error()})
	case errors.As(err, &transport):
		return fmt.Errorf("%w: %w", smartermodel.ErrBackendUnavailable, err)
	default:
		return err
	}
}

func statusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

// documentRow turns a document or hit into a row keyed by the model's id
// field.
func documentRow(desc *smartermodel.Descriptor, doc map[string]any) (query.Row, error) {
	id, ok := doc["_id"].(string)
	if !ok {
		return nil, invalidResponse("document has no string _id")
	}
	row := query.Row{}
	if source, ok := doc["_source"].(map[string]any); ok {
		for k, v := range source {
			row[k] = v
		}
	}
	row = query.NormalizeNumbers(row)
	row[desc.KeyField()] = id
	return row, nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func invalidResponse(reason string) error {
	return smartermodel.WithContext(smartermodel.ErrInvalidData, map[string]interface{}{
		"source": "opensearch",
		"reason": reason,
	})
}
