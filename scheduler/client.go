// Package scheduler is a stateless JSON-over-HTTP client for the
// orchestration scheduler that owns the authoritative app/task state the
// bridge mirrors into the catalog.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"
)

// Client exposes the typed scheduler operations the bridge depends on.
// All operations fail with *UpstreamError on transport failure, and all
// but AddEventSubscription also on a non-2xx response (AddEventSubscription
// reports a non-200 response as a false result instead). *SchemaError is
// returned when a required response field is absent and raising was
// requested.
type Client interface {
	ListEventSubscriptions(ctx context.Context) ([]string, error)
	AddEventSubscription(ctx context.Context, callbackURL string) (bool, error)
	ListApps(ctx context.Context) ([]App, error)
	GetApp(ctx context.Context, appID string) (App, error)
	ListAppTasks(ctx context.Context, appID string, raiseOnMissing bool) ([]Task, error)
}

// HTTPClient is the default Client implementation, talking JSON-over-HTTP
// to a single scheduler endpoint over a shared connection pool.
type HTTPClient struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     hclog.Logger
	Debug      bool
}

// NewHTTPClient returns a scheduler client bound to endpoint, issuing
// requests through the given pooled http.Client.
func NewHTTPClient(endpoint string, httpClient *http.Client, logger hclog.Logger, debug bool) *HTTPClient {
	return &HTTPClient{
		Endpoint:   endpoint,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      debug,
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) ListEventSubscriptions(ctx context.Context) ([]string, error) {
	fields, url, err := c.getJSON(ctx, "/v2/eventSubscriptions")
	if err != nil {
		return nil, err
	}
	var resp eventSubscriptionsResponse
	if err := c.requireField(fields, url, "callbackUrls", &resp.CallbackURLs); err != nil {
		return nil, err
	}
	return resp.CallbackURLs, nil
}

func (c *HTTPClient) AddEventSubscription(ctx context.Context, callbackURL string) (bool, error) {
	path := fmt.Sprintf("/v2/eventSubscriptions?%s", url.Values{"callbackUrl": {callbackURL}}.Encode())
	// Unlike the read operations, success here is defined purely as
	// "the response status was exactly 200"; other status codes are a
	// false result, not an UpstreamError. Only a transport failure is an
	// UpstreamError.
	resp, err := c.doRaw(ctx, http.MethodPost, path, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (c *HTTPClient) ListApps(ctx context.Context) ([]App, error) {
	fields, url, err := c.getJSON(ctx, "/v2/apps")
	if err != nil {
		return nil, err
	}
	var apps []App
	if err := c.requireField(fields, url, "apps", &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *HTTPClient) GetApp(ctx context.Context, appID string) (App, error) {
	fields, url, err := c.getJSON(ctx, fmt.Sprintf("/v2/apps%s", appID))
	if err != nil {
		return App{}, err
	}
	var app App
	if err := c.requireField(fields, url, "app", &app); err != nil {
		return App{}, err
	}
	return app, nil
}

// ListAppTasks lists the tasks belonging to appID. When raiseOnMissing is
// false and the scheduler either answers 404 for the app or sends a
// response with no "tasks" field, it yields an empty list instead of an
// error. This asymmetry with GetApp/ListApps is intentional: the purge
// engine uses raiseOnMissing=false so that an app deleted between the node
// list and the per-app task fetch is treated as having no tasks, rather
// than aborting the whole purge.
func (c *HTTPClient) ListAppTasks(ctx context.Context, appID string, raiseOnMissing bool) ([]Task, error) {
	fields, reqURL, err := c.getJSON(ctx, fmt.Sprintf("/v2/apps%s/tasks", appID))
	if err != nil {
		var upstream *UpstreamError
		if !raiseOnMissing && errors.As(err, &upstream) && upstream.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	raw, ok := fields["tasks"]
	if !ok {
		if raiseOnMissing {
			return nil, &SchemaError{URL: reqURL, Field: "tasks"}
		}
		return nil, nil
	}

	var tasks []Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, &SchemaError{URL: reqURL, Field: "tasks"}
	}
	return tasks, nil
}

// getJSON issues a GET and decodes the response into a field map so callers
// can distinguish an absent field from a zero-value one.
func (c *HTTPClient) getJSON(ctx context.Context, path string) (map[string]json.RawMessage, string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, c.url(path), err
	}
	defer resp.Body.Close()

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, c.url(path), &UpstreamError{URL: c.url(path), Err: err}
	}
	return fields, c.url(path), nil
}

func (c *HTTPClient) requireField(fields map[string]json.RawMessage, url, name string, out interface{}) error {
	raw, ok := fields[name]
	if !ok {
		return &SchemaError{URL: url, Field: name}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &SchemaError{URL: url, Field: name}
	}
	return nil
}

func (c *HTTPClient) url(path string) string {
	return c.Endpoint + path
}

// do issues a request and treats any non-2xx response as an UpstreamError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	resp, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		reqURL := c.url(path)
		if c.Logger != nil {
			c.Logger.Error("scheduler request returned non-success status", "method", method, "url", reqURL, "status", resp.StatusCode)
		}
		return nil, &UpstreamError{URL: reqURL, Status: resp.StatusCode}
	}

	return resp, nil
}

// doRaw issues a request and only fails on transport errors, leaving status
// code interpretation to the caller.
func (c *HTTPClient) doRaw(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	reqURL := c.url(path)

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &UpstreamError{URL: reqURL, Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, &UpstreamError{URL: reqURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Error("scheduler request failed", "method", method, "url", reqURL, "err", err)
		}
		return nil, &UpstreamError{URL: reqURL, Err: err}
	}

	if c.Debug && c.Logger != nil {
		c.Logger.Debug("scheduler request", "method", method, "url", reqURL, "status", resp.StatusCode)
	}

	return resp, nil
}
