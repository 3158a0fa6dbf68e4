package backend

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns a client tuned for many short calls to a small set
// of inference endpoints. All HTTP backends share one client, so connection
// pools are reused across the registry.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
