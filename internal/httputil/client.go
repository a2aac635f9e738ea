// Package httputil builds the HTTP clients used for dataset downloads.
package httputil

import (
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a whole request, body included. Monthly dataset
	// files run to tens of megabytes.
	DefaultTimeout = 2 * time.Minute
	UserAgent      = "neurasky-ingest/1"
)

// NewClient returns an HTTP client with the default timeout that identifies
// itself with UserAgent.
func NewClient() *http.Client {
	return NewClientTimeout(DefaultTimeout)
}

func NewClientTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: userAgent{next: http.DefaultTransport},
	}
}

type userAgent struct {
	next http.RoundTripper
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", UserAgent)
	return u.next.RoundTrip(r)
}
