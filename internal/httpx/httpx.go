package httpx

import (
    "context"
    "net"
    "net/http"
    "sync/atomic"
    "time"
)

// Client is a small wrapper around http.Client with sane defaults.
// When UserAgents has several entries, requests rotate through them so the
// upstream provider does not key on a single agent string.
type Client struct {
    HTTP       *http.Client
    UserAgents []string
    Headers    map[string]string

    next atomic.Uint64
}

func New(timeout time.Duration) *Client {
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          200,
        MaxIdleConnsPerHost:   100,
        MaxConnsPerHost:       100,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 5 * time.Second,
    }
    return &Client{
        HTTP:       &http.Client{Timeout: timeout, Transport: transport},
        UserAgents: []string{"market-facade/1.0"},
    }
}

func (c *Client) userAgent() string {
    if len(c.UserAgents) == 0 { return "" }
    n := c.next.Add(1)
    return c.UserAgents[int((n-1)%uint64(len(c.UserAgents)))]
}

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
    req = req.WithContext(ctx)
    if ua := c.userAgent(); ua != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", ua)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    return c.HTTP.Do(req)
}
