// headers/headers.go
package headers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/deploymenttheory/go-api-session-client/headers/redact"
	"github.com/deploymenttheory/go-api-session-client/logger"
	"go.uber.org/zap"
)

const (
	// AuthorizationScheme is prefixed to every credential written to the Authorization header.
	AuthorizationScheme = "Bearer"
	// DefaultNoCredentialPlaceholder is sent in place of a token when the session has none.
	DefaultNoCredentialPlaceholder = "null"
)

// HeaderHandler is responsible for managing and setting headers on HTTP requests.
type HeaderHandler struct {
	req               *http.Request
	log               logger.Logger
	hideSensitiveData bool
}

// NewHeaderHandler creates a new instance of HeaderHandler for a given http.Request and logger.
func NewHeaderHandler(req *http.Request, log logger.Logger, hideSensitiveData bool) *HeaderHandler {
	return &HeaderHandler{
		req:               req,
		log:               log,
		hideSensitiveData: hideSensitiveData,
	}
}

// SetAuthorization writes "Bearer <token>". When the session holds no token the placeholder is
// written instead, so the header is never omitted.
func (h *HeaderHandler) SetAuthorization(token string, present bool, placeholder string) {
	h.req.Header.Set("Authorization", AuthorizationValue(token, present, placeholder))
}

// AuthorizationValue builds the Authorization header value for a token lookup result.
func AuthorizationValue(token string, present bool, placeholder string) string {
	if !present || token == "" {
		if placeholder == "" {
			placeholder = DefaultNoCredentialPlaceholder
		}
		return AuthorizationScheme + " " + placeholder
	}
	token = strings.TrimPrefix(token, AuthorizationScheme+" ")
	return AuthorizationScheme + " " + token
}

// SetContentType sets the Content-Type header for the request.
func (h *HeaderHandler) SetContentType(contentType string) {
	if contentType != "" {
		h.req.Header.Set("Content-Type", contentType)
	}
}

// SetAccept sets the Accept header for the request.
func (h *HeaderHandler) SetAccept(acceptHeader string) {
	h.req.Header.Set("Accept", acceptHeader)
}

// SetUserAgent sets the User-Agent header for the request.
func (h *HeaderHandler) SetUserAgent(userAgent string) {
	h.req.Header.Set("User-Agent", userAgent)
}

// SetCustomHeaders copies caller supplied headers onto the request. Authorization is owned by
// the pipeline and is skipped.
func (h *HeaderHandler) SetCustomHeaders(custom map[string]string) {
	for name, value := range custom {
		if strings.EqualFold(name, "Authorization") || value == "" {
			continue
		}
		h.req.Header.Set(name, value)
	}
}

// LogHeaders prints the request headers at debug level, redacting sensitive values.
func (h *HeaderHandler) LogHeaders() {
	if h.log.GetLogLevel() > logger.LogLevelDebug {
		return
	}
	redacted := redact.RedactHeaders(h.hideSensitiveData, h.req.Header)
	h.log.Debug("HTTP Request Headers", zap.String("Headers", HeadersToString(redacted)))
}

// HeadersToString converts headers to a string for logging, one header per line in name order.
func HeadersToString(headers map[string][]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	headerStrings := make([]string, 0, len(names))
	for _, name := range names {
		headerStrings = append(headerStrings, fmt.Sprintf("%s: %s", name, strings.Join(headers[name], ", ")))
	}
	return strings.Join(headerStrings, "\n")
}

// CheckDeprecationHeader checks the response headers for the Deprecation header and logs a warning if present.
func CheckDeprecationHeader(resp *http.Response, log logger.Logger) {
	deprecationHeader := resp.Header.Get("Deprecation")
	if deprecationHeader == "" {
		return
	}

	endpoint := ""
	if resp.Request != nil && resp.Request.URL != nil {
		endpoint = resp.Request.URL.String()
	}
	log.Warn("API endpoint is deprecated",
		zap.String("Date", deprecationHeader),
		zap.String("Endpoint", endpoint),
	)
}
