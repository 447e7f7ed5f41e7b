package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// NewSecureHTTPClient returns a client that honours proxy variables and
// requires TLS 1.2 or newer. timeout bounds the wait for response headers
// only; reading a body is never cut off by the client, so large downloads
// on slow links complete. Zero keeps the default header timeout.
func NewSecureHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}
	return &http.Client{Transport: transport}
}
