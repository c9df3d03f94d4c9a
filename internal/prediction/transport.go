package prediction

import (
	"net"
	"net/http"
	"time"
)

// newHTTPClient creates an HTTP client with the configured timeouts.
func newHTTPClient(timeout, connectTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout + connectTimeout,
	}
}
