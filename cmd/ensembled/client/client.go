// Package client talks to the client API of a running embedded node.
package client

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/concave-dev/ensemble/internal/cnxn"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/netutil"
	"github.com/concave-dev/ensemble/internal/version"
	"github.com/go-resty/resty/v2"
)

// Options configures a Client.
type Options struct {
	Addr    string
	Timeout time.Duration
	// CACert, Cert and Key enable TLS; Cert and Key are the client identity.
	CACert string
	Cert   string
	Key    string
}

// Client wraps resty for the node's /v1 endpoints.
type Client struct {
	client  *resty.Client
	baseURL string
}

// RestyLogger routes resty's internal logging through the unified logger.
type RestyLogger struct{}

func (RestyLogger) Errorf(format string, v ...any) { logging.Error(format, v...) }
func (RestyLogger) Warnf(format string, v ...any)  { logging.Warn(format, v...) }
func (RestyLogger) Debugf(format string, v ...any) { logging.Debug(format, v...) }

// New builds a client for the node at opts.Addr.
func New(opts Options) (*Client, error) {
	scheme := "http"
	client := resty.New()

	if opts.CACert != "" || opts.Cert != "" {
		scheme = "https"
		if opts.CACert != "" {
			client.SetRootCertificate(opts.CACert)
		}
		if opts.Cert != "" {
			cert, err := tls.LoadX509KeyPair(opts.Cert, opts.Key)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			client.SetCertificates(cert)
		}
	}

	baseURL := fmt.Sprintf("%s://%s/v1", scheme, opts.Addr)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client.SetLogger(RestyLogger{})
	client.
		SetTimeout(timeout).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", fmt.Sprintf("ensembled/%s", version.EnsembledVersion))

	// Only retry on connection errors, not HTTP errors
	client.
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil
		})

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logging.Debug("Making API request: %s %s", req.Method, req.URL)
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logging.Debug("API response: %d %s (took %v)", resp.StatusCode(), resp.Status(), resp.Time())
		return nil
	})

	return &Client{client: client, baseURL: baseURL}, nil
}

// Status fetches GET /v1/status.
func (c *Client) Status() (*cnxn.StatusResponse, error) {
	var status cnxn.StatusResponse
	var apiErr cnxn.ErrorResponse

	resp, err := c.client.R().
		SetResult(&status).
		SetError(&apiErr).
		Get("/status")
	if err != nil {
		if netutil.IsConnectionRefusedError(err) {
			return nil, fmt.Errorf("no node is listening at %s: %w", c.baseURL, err)
		}
		return nil, fmt.Errorf("failed to connect to node at %s: %w", c.baseURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status request failed with status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return &status, nil
}
