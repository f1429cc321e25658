package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"h12.io/socks"
)

// socksTimeout bounds the connect and handshake with a SOCKS proxy.
const socksTimeout = 10 * time.Second

// ProxyConfig selects an optional proxy for segment requests.
// At most one of HTTP and SOCKS may be set.
type ProxyConfig struct {
	// HTTP is a proxy URL such as http://127.0.0.1:3128
	HTTP string

	// SOCKS is the host:port of a SOCKS5 proxy
	SOCKS string
}

// NewTransport builds the HTTP transport used for segment requests.
// Without a proxy a plain transport with connect and header timeouts is returned.
func NewTransport(proxy ProxyConfig, timeout time.Duration) (*http.Transport, error) {
	if proxy.HTTP != "" && proxy.SOCKS != "" {
		return nil, fmt.Errorf("only one of http and socks proxy may be set")
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: timeout,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	switch {
	case proxy.HTTP != "":
		u, err := url.Parse(proxy.HTTP)
		if err != nil {
			return nil, fmt.Errorf("invalid http proxy %q: %w", proxy.HTTP, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid http proxy %q: scheme and host are required", proxy.HTTP)
		}
		transport.Proxy = http.ProxyURL(u)

	case proxy.SOCKS != "":
		if _, _, err := net.SplitHostPort(proxy.SOCKS); err != nil {
			return nil, fmt.Errorf("invalid socks proxy %q: %w", proxy.SOCKS, err)
		}
		transport.Proxy = nil
		transport.DialContext = dialContext(socks.Dial("socks5://" + proxy.SOCKS + "?timeout=" + socksTimeout.String()))
	}

	return transport, nil
}

// NewClient returns an HTTP client for segment requests.
// The timeout covers a whole request including the body; 0 disables it.
func NewClient(proxy ProxyConfig, timeout time.Duration) (*http.Client, error) {
	transport, err := NewTransport(proxy, timeout)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// dialContext adapts a dialer without context support. When ctx ends first the
// dial is abandoned and its connection, if one still arrives, is closed.
func dialContext(dial func(network, addr string) (net.Conn, error)) func(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		done := make(chan result, 1)
		go func() {
			conn, err := dial(network, addr)
			done <- result{conn: conn, err: err}
		}()

		select {
		case r := <-done:
			return r.conn, r.err
		case <-ctx.Done():
			go func() {
				if r := <-done; r.conn != nil {
					r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}
