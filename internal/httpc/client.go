// Package httpc holds the network defaults shared by the agent transports:
// one dialer configuration for websocket handshakes and HTTP clients.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for network operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultTLSTimeout      = 10 * time.Second
)

// Dialer returns a TCP dialer with the default connect timeout and
// keep-alive. Long-lived websockets rely on the keep-alive to notice a
// dead peer.
func Dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}
}

// NewTransport returns an HTTP transport using Dialer and the proxy
// settings from the environment.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           Dialer().DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   DefaultTLSTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// NewClient returns an HTTP client with the given overall timeout.
// Zero disables the timeout, for streaming responses.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}
