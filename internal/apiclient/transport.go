// internal/apiclient/transport.go
package apiclient

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

// decodingTransport negotiates compression and transparently decodes br and gzip bodies.
type decodingTransport struct {
	next http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, identity")
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// bodyCloser closes the decoder and the original body together.
type bodyCloser struct {
	io.Reader
	decoder io.Closer
	orig    io.Closer
}

func (b *bodyCloser) Close() error {
	var err1 error
	if b.decoder != nil {
		err1 = b.decoder.Close()
	}
	return errors.Join(err1, b.orig.Close())
}

// decodeBody replaces resp.Body with a decoding reader for the declared Content-Encoding.
// Unknown encodings are left untouched.
func decodeBody(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "br":
		resp.Body = &bodyCloser{Reader: brotli.NewReader(resp.Body), orig: resp.Body}
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip initialization error: %w", err)
		}
		resp.Body = &bodyCloser{Reader: zr, decoder: zr, orig: resp.Body}
	default:
		return nil
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// pacedTransport waits on a token bucket before each request.
type pacedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return t.next.RoundTrip(req)
}

// headerTransport stamps default headers onto every request.
type headerTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}
