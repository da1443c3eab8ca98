package httpclient

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBody(t *testing.T) {
	type widget struct {
		Name string `json:"name" xml:"name"`
	}

	tests := []struct {
		name            string
		body            any
		contentType     string
		wantBody        string
		wantContentType string
	}{
		{name: "nil", body: nil, contentType: "application/json"},
		{name: "raw bytes", body: []byte("raw"), contentType: "text/plain", wantBody: "raw", wantContentType: "text/plain"},
		{name: "string", body: "text", contentType: "text/plain", wantBody: "text", wantContentType: "text/plain"},
		{name: "reader", body: strings.NewReader("streamed"), contentType: "application/octet-stream", wantBody: "streamed", wantContentType: "application/octet-stream"},
		{name: "form", body: url.Values{"grant": {"x"}}, contentType: "application/json", wantBody: "grant=x", wantContentType: "application/x-www-form-urlencoded"},
		{name: "json struct", body: widget{Name: "gear"}, contentType: "application/json", wantBody: `{"name":"gear"}`, wantContentType: "application/json"},
		{name: "json when content type is not structured", body: widget{Name: "gear"}, contentType: "text/plain", wantBody: `{"name":"gear"}`, wantContentType: "application/json"},
		{name: "xml struct", body: widget{Name: "gear"}, contentType: "application/xml", wantBody: `<widget><name>gear</name></widget>`, wantContentType: "application/xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType, err := encodeBody(tt.body, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(body))
			assert.Equal(t, tt.wantContentType, contentType)
		})
	}
}

func TestEncodeBody_UnsupportedValue(t *testing.T) {
	_, _, err := encodeBody(make(chan int), "application/json")
	assert.Error(t, err)
}
