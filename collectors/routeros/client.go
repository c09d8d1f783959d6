// collectors/routeros/client.go
package routeros

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"netpoller/collectors"
)

// Record is one RouterOS REST row. Values are strings on the wire.
type Record map[string]string

// Client is a minimal RouterOS v7 REST client
type Client struct {
	http *http.Client
	// scheme override for tests
	scheme string
}

// NewClient creates a client with the given request timeout. Certificate
// checks are skipped: routers ship self-signed certificates.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// NewClientWithHTTP uses hc as is and always speaks plain http
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{http: hc, scheme: "http"}
}

// Get fetches a menu path such as "system/resource"
func (c *Client) Get(ctx context.Context, d collectors.Device, path string) ([]Record, error) {
	return c.do(ctx, d, http.MethodGet, path, nil)
}

// Post runs a menu command such as "interface/monitor-traffic"
func (c *Client) Post(ctx context.Context, d collectors.Device, path string, args map[string]any) ([]Record, error) {
	return c.do(ctx, d, http.MethodPost, path, args)
}

func (c *Client) do(ctx context.Context, d collectors.Device, method, path string, args map[string]any) ([]Record, error) {
	var body io.Reader
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encoding arguments: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(d, path), body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(d.APIUser, d.APIPassword)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	return decodeRecords(data)
}

func (c *Client) url(d collectors.Device, path string) string {
	scheme := c.scheme
	if scheme == "" {
		scheme = "http"
		if d.UseTLS {
			scheme = "https"
		}
	}
	host := d.Host
	if d.APIPort != 0 {
		host = net.JoinHostPort(d.Host, strconv.Itoa(d.APIPort))
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/rest/" + path}
	return u.String()
}

// decodeRecords accepts either a single object or an array of objects and
// stringifies non-string scalars.
func decodeRecords(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raw []map[string]any
	if data[0] == '{' {
		var one map[string]any
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		raw = append(raw, one)
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	out := make([]Record, 0, len(raw))
	for _, m := range raw {
		rec := make(Record, len(m))
		for k, v := range m {
			switch t := v.(type) {
			case string:
				rec[k] = t
			case nil:
			default:
				rec[k] = fmt.Sprint(t)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Float returns the numeric value of key, or 0
func (r Record) Float(key string) float64 {
	v, err := strconv.ParseFloat(r[key], 64)
	if err != nil {
		return 0
	}
	return v
}

// Bool reports whether key is "true" or "yes"
func (r Record) Bool(key string) bool {
	switch r[key] {
	case "true", "yes":
		return true
	}
	return false
}

// String returns key or def when missing
func (r Record) String(key, def string) string {
	if v, ok := r[key]; ok && v != "" {
		return v
	}
	return def
}
