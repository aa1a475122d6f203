package schema

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StoredResponse is a response persisted in a named cache, keyed by the
// request that produced it.
type StoredResponse struct {
	Method     string       `json:"method"`
	URL        string       `json:"url"`
	Status     int          `json:"status"`
	StatusText string       `json:"status_text"`
	Header     http.Header  `json:"header"`
	Body       []byte       `json:"-"`
	Type       ResponseType `json:"type"`
	StoredAt   time.Time    `json:"stored_at"`
}

// Key returns the request identity the response is stored under.
func (r *StoredResponse) Key() string {
	return RequestKey(r.Method, r.URL)
}

// Info returns the body-less description of the response.
func (r *StoredResponse) Info(cacheName string) CacheEntryInfo {
	return CacheEntryInfo{
		CacheName: cacheName,
		Method:    r.Method,
		URL:       r.URL,
		Status:    r.Status,
		Type:      r.Type,
		BodyBytes: int64(len(r.Body)),
		StoredAt:  r.StoredAt,
	}
}

// HTTPResponse rebuilds the response for req. Every call gets its own body reader.
func (r *StoredResponse) HTTPResponse(req *http.Request) *http.Response {
	text := r.StatusText
	if text == "" {
		text = http.StatusText(r.Status)
	}
	return &http.Response{
		Status:        strconv.Itoa(r.Status) + " " + text,
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
