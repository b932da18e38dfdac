package transport

import (
	"bytes"
	"net/http"
	"time"
)

// Response represents an HTTP response received from the transport client.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers contains the response headers.
	Headers http.Header

	// Body is the raw response body.
	Body []byte

	// Duration is the precise round-trip time for the request.
	Duration time.Duration
}

// BodyString returns the response body as a string.
func (r *Response) BodyString() string {
	return string(r.Body)
}

// ContainsAny returns the first signature that occurs in the body.
// A nil response never matches.
func (r *Response) ContainsAny(signatures []string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, sig := range signatures {
		if sig != "" && bytes.Contains(r.Body, []byte(sig)) {
			return sig, true
		}
	}
	return "", false
}
