package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport_Default(t *testing.T) {
	transport, err := NewTransport(ProxyConfig{}, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, transport.ResponseHeaderTimeout)
	assert.NotNil(t, transport.DialContext)
}

func TestNewTransport_HTTPProxy(t *testing.T) {
	transport, err := NewTransport(ProxyConfig{HTTP: "http://127.0.0.1:3128"}, 0)
	require.NoError(t, err)
	require.NotNil(t, transport.Proxy)

	req, err := http.NewRequest(http.MethodGet, "http://example.com/1.ts", nil)
	require.NoError(t, err)

	proxyURL, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3128", proxyURL.Host)
}

func TestNewTransport_SOCKSProxy(t *testing.T) {
	transport, err := NewTransport(ProxyConfig{SOCKS: "127.0.0.1:1080"}, 0)
	require.NoError(t, err)

	assert.Nil(t, transport.Proxy)
	assert.NotNil(t, transport.DialContext)
}

func TestNewTransport_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		proxy ProxyConfig
	}{
		{"both proxies", ProxyConfig{HTTP: "http://127.0.0.1:3128", SOCKS: "127.0.0.1:1080"}},
		{"http proxy without scheme", ProxyConfig{HTTP: "127.0.0.1"}},
		{"socks proxy without port", ProxyConfig{SOCKS: "127.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransport(tt.proxy, 0)
			assert.Error(t, err)
		})
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(ProxyConfig{}, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.IsType(t, &http.Transport{}, client.Transport)
}

func TestNewTransport_SOCKSDialHonorsContext(t *testing.T) {
	// A proxy that accepts connections and never answers the handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		var conns []net.Conn
		for {
			conn, err := ln.Accept()
			if err != nil {
				for _, c := range conns {
					c.Close()
				}
				return
			}
			conns = append(conns, conn)
		}
	}()

	transport, err := NewTransport(ProxyConfig{SOCKS: ln.Addr().String()}, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = transport.DialContext(ctx, "tcp", "example.com:80")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDialContext_ClosesLateConnection(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	release := make(chan struct{})
	dial := dialContext(func(network, addr string) (net.Conn, error) {
		<-release
		return client, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := dial(ctx, "tcp", "example.com:80")
	assert.ErrorIs(t, err, context.Canceled)

	// The abandoned dial completes afterwards; its connection must be closed.
	close(release)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = server.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDialContext_CanceledBeforeDial(t *testing.T) {
	called := false
	dial := dialContext(func(network, addr string) (net.Conn, error) {
		called = true
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := dial(ctx, "tcp", "example.com:80")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDialContext_PassesThroughResult(t *testing.T) {
	want := errors.New("proxy refused")
	dial := dialContext(func(network, addr string) (net.Conn, error) {
		return nil, want
	})

	_, err := dial(context.Background(), "tcp", "example.com:80")
	assert.ErrorIs(t, err, want)
}
