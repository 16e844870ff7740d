package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/config"
)

// StatusError is returned when the upstream answers outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client is a JSON-over-HTTP client bound to one southbound endpoint. It
// carries the endpoint's mTLS identity, CA bundle and timeout so callers
// only name routes.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func New(cfg config.Endpoint, logger zerolog.Logger) (*Client, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		http: &http.Client{
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

func newTransport(cfg config.Endpoint) (*http.Transport, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.MTLSCert != "" && cfg.MTLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.MTLSCert, cfg.MTLSKey)
		if err != nil {
			return nil, fmt.Errorf("load mtls key pair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	switch cfg.VerifyCA {
	case "", "true":
		// system roots
	case "false":
		tlsCfg.InsecureSkipVerify = true
	default:
		pem, err := os.ReadFile(cfg.VerifyCA)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.VerifyCA)
		}
		tlsCfg.RootCAs = pool
	}

	return &http.Transport{TLSClientConfig: tlsCfg}, nil
}

// Request describes one outbound call. JSON and Form are mutually exclusive
// body encodings; JSON wins when both are set.
type Request struct {
	Method string
	Route  string
	Query  url.Values
	Header http.Header
	JSON   any
	Form   url.Values
}

// Do performs the request and returns the response body. Responses outside
// the 2xx range yield a *StatusError.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	u := c.baseURL + "/" + strings.TrimLeft(req.Route, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("url", u).Msg("request failed")
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("method", req.Method).
			Str("url", u).
			Msg("upstream returned an error status")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// DoJSON performs the request and decodes the JSON response into out.
// A nil out discards the body.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	data, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Healthy reports whether a GET on the given route answers with a 2xx.
func (c *Client) Healthy(ctx context.Context, route string) bool {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Route: route})
	return err == nil
}
