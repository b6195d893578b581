// Package catalog is a stateless JSON-over-HTTP client for the
// service-discovery catalog: per-node agent registration and the
// cluster-wide key/value store and node list.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Client exposes the catalog operations the bridge depends on. Per-agent
// operations use a shorter timeout than cluster-wide operations so a dead
// worker doesn't stall reconciliation.
type Client interface {
	RegisterService(ctx context.Context, agentEndpoint string, reg Registration) error
	DeregisterService(ctx context.Context, agentEndpoint string, serviceID string) error
	ListAgentServices(ctx context.Context, agentEndpoint string) (map[string]AgentService, error)

	ListNodes(ctx context.Context) ([]Node, error)
	PutKV(ctx context.Context, key, value string) error
	DeleteKV(ctx context.Context, key string, recurse bool) error
	ListKVKeys(ctx context.Context, prefix, separator string) ([]string, error)
}

// HTTPClient is the default Client implementation.
type HTTPClient struct {
	// ClusterEndpoint is the operator-supplied cluster-wide catalog
	// endpoint: used for KV operations, the node list, and as the
	// fallback target for failed agent registrations.
	ClusterEndpoint string

	HTTPClient *http.Client
	Logger     hclog.Logger
	Debug      bool

	// EnableFallback governs whether a failed per-agent registration is
	// retried once against ClusterEndpoint. Fallback is only ever used
	// for registrations, never deregistrations or reads.
	EnableFallback bool

	// DefaultTimeout bounds cluster-wide operations.
	DefaultTimeout time.Duration
	// AgentTimeout bounds per-agent operations, shorter than
	// DefaultTimeout so a dead worker doesn't stall reconciliation.
	AgentTimeout time.Duration
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a catalog client.
func NewHTTPClient(clusterEndpoint string, httpClient *http.Client, logger hclog.Logger, debug, enableFallback bool, defaultTimeout, agentTimeout time.Duration) *HTTPClient {
	return &HTTPClient{
		ClusterEndpoint: clusterEndpoint,
		HTTPClient:      httpClient,
		Logger:          logger,
		Debug:           debug,
		EnableFallback:  enableFallback,
		DefaultTimeout:  defaultTimeout,
		AgentTimeout:    agentTimeout,
	}
}

func (c *HTTPClient) RegisterService(ctx context.Context, agentEndpoint string, reg Registration) error {
	err := c.registerAt(ctx, agentEndpoint, reg, c.AgentTimeout)
	if err == nil {
		return nil
	}

	if !c.EnableFallback {
		return err
	}

	if c.Logger != nil {
		c.Logger.Warn("agent registration failed, falling back to cluster endpoint",
			"agent-endpoint", agentEndpoint, "service-id", reg.ID, "err", err)
	}
	return c.registerAt(ctx, c.ClusterEndpoint, reg, c.DefaultTimeout)
}

func (c *HTTPClient) registerAt(ctx context.Context, endpoint string, reg Registration, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.do(ctx, http.MethodPut, endpoint, "/v1/agent/service/register", reg)
	return err
}

// DeregisterService is never retried against the cluster endpoint: the
// cluster endpoint has no way to address an arbitrary worker's local agent
// for a deregister, so a failure here is logged and left for the next
// purge pass.
func (c *HTTPClient) DeregisterService(ctx context.Context, agentEndpoint string, serviceID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.AgentTimeout)
	defer cancel()
	path := fmt.Sprintf("/v1/agent/service/deregister/%s", url.PathEscape(serviceID))
	_, err := c.do(ctx, http.MethodPut, agentEndpoint, path, nil)
	return err
}

func (c *HTTPClient) ListAgentServices(ctx context.Context, agentEndpoint string) (map[string]AgentService, error) {
	ctx, cancel := context.WithTimeout(ctx, c.AgentTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, agentEndpoint, "/v1/agent/services", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var services map[string]AgentService
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		return nil, &UpstreamError{URL: agentEndpoint + "/v1/agent/services", Err: err}
	}
	return services, nil
}

func (c *HTTPClient) ListNodes(ctx context.Context) ([]Node, error) {
	ctx, cancel := context.WithTimeout(ctx, c.DefaultTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, c.ClusterEndpoint, "/v1/catalog/nodes", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var nodes []Node
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return nil, &UpstreamError{URL: c.ClusterEndpoint + "/v1/catalog/nodes", Err: err}
	}
	return nodes, nil
}

func (c *HTTPClient) PutKV(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, c.DefaultTimeout)
	defer cancel()
	path := "/v1/kv/" + encodeKVKey(key)

	reqURL := c.ClusterEndpoint + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, strings.NewReader(value))
	if err != nil {
		return &UpstreamError{URL: reqURL, Err: err}
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkStatus(resp, reqURL)
}

func (c *HTTPClient) DeleteKV(ctx context.Context, key string, recurse bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.DefaultTimeout)
	defer cancel()
	path := "/v1/kv/" + encodeKVKey(key)
	if recurse {
		path += "?recurse"
	}
	_, err := c.do(ctx, http.MethodDelete, c.ClusterEndpoint, path, nil)
	return err
}

func (c *HTTPClient) ListKVKeys(ctx context.Context, prefix, separator string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.DefaultTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("keys", "")
	if separator != "" {
		q.Set("separator", separator)
	}
	path := "/v1/kv/" + encodeKVKey(prefix) + "?" + q.Encode()

	resp, err := c.do(ctx, http.MethodGet, c.ClusterEndpoint, path, nil)
	if err != nil {
		// A missing prefix is reported by the catalog as 404; that's an
		// empty key list, not an error, for our purposes.
		if upstream, ok := err.(*UpstreamError); ok && upstream.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	var keys []string
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, &UpstreamError{URL: c.ClusterEndpoint + path, Err: err}
	}
	return keys, nil
}

func encodeKVKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint, path string, body interface{}) (*http.Response, error) {
	reqURL := endpoint + path

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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if err := c.checkStatus(resp, reqURL); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) send(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Error("catalog request failed", "method", req.Method, "url", req.URL.String(), "err", err)
		}
		return nil, &UpstreamError{URL: req.URL.String(), Err: err}
	}
	if c.Debug && c.Logger != nil {
		c.Logger.Debug("catalog request", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode)
	}
	return resp, nil
}

func (c *HTTPClient) checkStatus(resp *http.Response, reqURL string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if c.Logger != nil {
		c.Logger.Error("catalog request returned non-success status", "url", reqURL, "status", resp.StatusCode)
	}
	return &UpstreamError{URL: reqURL, Status: resp.StatusCode}
}
