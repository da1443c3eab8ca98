// headers/redact/redact.go
package redact

import (
	"net/http"
	"strings"
)

const redactedValue = "REDACTED"

// sensitiveKeys are matched case-insensitively against header names and token field names.
var sensitiveKeys = map[string]bool{
	"accesstoken":         true,
	"refreshtoken":        true,
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
}

// RedactSensitiveHeaderData redacts sensitive data based on the hideSensitiveData flag.
// The no-credential placeholder is never redacted so anonymous calls stay recognisable in logs.
func RedactSensitiveHeaderData(hideSensitiveData bool, key, value string) string {
	if !hideSensitiveData || !sensitiveKeys[strings.ToLower(key)] {
		return value
	}
	if strings.EqualFold(key, "Authorization") {
		if scheme, credential, ok := strings.Cut(value, " "); ok {
			if credential == "null" {
				return value
			}
			return scheme + " " + redactedValue
		}
	}
	return redactedValue
}

// RedactHeaders returns a copy of headers with every sensitive value redacted.
func RedactHeaders(hideSensitiveData bool, headers http.Header) map[string][]string {
	redacted := make(map[string][]string, len(headers))
	for name, values := range headers {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = RedactSensitiveHeaderData(hideSensitiveData, name, v)
		}
		redacted[name] = out
	}
	return redacted
}
