// Package transport provides the HTTP client shared by discovery, probing
// and the intercepting proxy. A nil *Response from Send means the target
// gave no response.
package transport

import "time"

// Request is one outgoing request. Cookies are not set here; every request
// carries whatever the client's jar holds for its URL.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string

	// Body is sent as is; probe POSTs put an encoded form here.
	Body        string
	ContentType string

	// FollowRedirects overrides the client setting when non-nil. The
	// liveness probe and the proxy pin it to false.
	FollowRedirects *bool

	// Timeout overrides the client timeout when positive. Timing probes
	// raise it so a delayed response is still measured.
	Timeout time.Duration
}
