package core

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/offcache/schema"
)

// responseType classifies resp relative to the worker origin. The final URL
// after redirects decides; reqURL is used when the response carries no request.
func responseType(resp *http.Response, reqURL, origin *url.URL) schema.ResponseType {
	final := reqURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	switch {
	case schema.SameOrigin(final, origin):
		return schema.BasicResponse
	case resp.Header.Get("Access-Control-Allow-Origin") != "":
		return schema.CORSResponse
	default:
		return schema.OpaqueResponse
	}
}

// bufferResponse reads and closes the body of resp, returning it as a stored response for req.
func bufferResponse(req *http.Request, resp *http.Response, typ schema.ResponseType) (*schema.StoredResponse, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", req.URL, err)
	}
	return &schema.StoredResponse{
		Method:     http.MethodGet,
		URL:        req.URL.String(),
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header.Clone(),
		Body:       body,
		Type:       typ,
		StoredAt:   time.Now(),
	}, nil
}

// cloneResponse buffers the body of resp and gives resp a fresh reader over it,
// so both the caller and the returned copy can consume the same bytes.
func cloneResponse(req *http.Request, resp *http.Response, typ schema.ResponseType) (*schema.StoredResponse, error) {
	stored, err := bufferResponse(req, resp, typ)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(stored.Body))
	resp.ContentLength = int64(len(stored.Body))
	return stored, nil
}

// statusText returns the reason phrase of resp, e.g. "OK" for "200 OK".
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
