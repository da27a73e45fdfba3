package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"lakupos/terminal/internal/domain"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPClient implements Client against a JSON document API:
//
//	GET    {base}/api/resource/{entityType}?{filters}
//	GET    {base}/api/resource/{entityType}/{id}
//	POST   {base}/api/resource/{entityType}
//	PUT    {base}/api/resource/{entityType}/{id}
//	DELETE {base}/api/resource/{entityType}/{id}
//	GET    {base}/api/ping
type HTTPClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func NewHTTPClient(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPClient {
	if timeout < 1 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
}

type listEnvelope struct {
	Data []json.RawMessage `json:"data"`
}

type docEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *HTTPClient) GetList(ctx context.Context, entityType domain.EntityType, filters Filters) ([]json.RawMessage, error) {
	endpoint := c.resourceURL(entityType, "")
	if len(filters) > 0 {
		query := url.Values{}
		for k, v := range filters {
			query.Set(k, v)
		}
		endpoint += "?" + query.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode list response: %v", ErrRejected, err)
	}
	return envelope.Data, nil
}

func (c *HTTPClient) GetDoc(ctx context.Context, entityType domain.EntityType, id string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, c.resourceURL(entityType, id), nil)
	if err != nil {
		return nil, err
	}
	return unwrapDoc(body)
}

func (c *HTTPClient) SaveDoc(ctx context.Context, entityType domain.EntityType, doc json.RawMessage) (json.RawMessage, error) {
	method := http.MethodPost
	endpoint := c.resourceURL(entityType, "")

	// A document that already carries a server id is an update.
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &probe); err == nil && probe.ID != "" {
		method = http.MethodPut
		endpoint = c.resourceURL(entityType, probe.ID)
	}

	body, err := c.do(ctx, method, endpoint, doc)
	if err != nil {
		return nil, err
	}
	return unwrapDoc(body)
}

func (c *HTTPClient) DeleteDoc(ctx context.Context, entityType domain.EntityType, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.resourceURL(entityType, id), nil)
	return err
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ping", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) resourceURL(entityType domain.EntityType, id string) string {
	endpoint := c.baseURL + "/api/resource/" + url.PathEscape(string(entityType))
	if id != "" {
		endpoint += "/" + url.PathEscape(id)
	}
	return endpoint
}

func (c *HTTPClient) do(ctx context.Context, method string, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token: %v", ErrUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(data, 256))
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

func unwrapDoc(body []byte) (json.RawMessage, error) {
	var envelope docEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRejected, err)
	}
	if envelope.Data == nil {
		// Some endpoints return the document without the envelope.
		return body, nil
	}
	return envelope.Data, nil
}

func truncate(data []byte, max int) string {
	if len(data) > max {
		data = data[:max]
	}
	return string(data)
}
