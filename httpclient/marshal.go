// httpclient/marshal.go
package httpclient

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// encodeBody turns a request body into bytes so an attempt can be replayed after a refresh.
// Raw bodies ([]byte, string, io.Reader) are sent as-is with the configured content type,
// url.Values are form encoded and anything else is marshalled to XML or JSON depending on it.
func encodeBody(body any, contentType string) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return v, contentType, nil
	case string:
		return []byte(v), contentType, nil
	case url.Values:
		return []byte(v.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, "", fmt.Errorf("reading request body: %w", err)
		}
		return data, contentType, nil
	}

	if strings.Contains(contentType, "xml") {
		data, err := xml.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("marshalling XML request body: %w", err)
		}
		return data, contentType, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshalling JSON request body: %w", err)
	}
	if !strings.Contains(contentType, "json") {
		contentType = "application/json"
	}
	return data, contentType, nil
}
