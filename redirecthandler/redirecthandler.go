// redirecthandler/redirecthandler.go
package redirecthandler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/deploymenttheory/go-api-session-client/logger"
	"github.com/deploymenttheory/go-api-session-client/status"
	"go.uber.org/zap"
)

// RedirectHandler contains configurations for handling HTTP redirects.
type RedirectHandler struct {
	log              logger.Logger
	MaxRedirects     int      // Maximum allowed redirects to prevent infinite loops.
	SensitiveHeaders []string // Headers removed when a redirect leaves the original host.
}

// NewRedirectHandler creates a new instance of RedirectHandler.
func NewRedirectHandler(log logger.Logger, maxRedirects int) *RedirectHandler {
	return &RedirectHandler{
		log:              log,
		MaxRedirects:     maxRedirects,
		SensitiveHeaders: []string{"Authorization", "Cookie", "Proxy-Authorization"},
	}
}

// AddSensitiveHeader allows adding configurable sensitive headers.
func (r *RedirectHandler) AddSensitiveHeader(header string) {
	r.SensitiveHeaders = append(r.SensitiveHeaders, header)
}

// WithRedirectHandling applies the redirect handling policy to an http.Client.
func (r *RedirectHandler) WithRedirectHandling(client *http.Client) {
	client.CheckRedirect = r.checkRedirect
}

// checkRedirect is called by net/http before following a redirect. req is the next request,
// via holds the requests already made, oldest first.
func (r *RedirectHandler) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}
	original := via[0]
	previous := via[len(via)-1]

	var lastStatus int
	if previous.Response != nil {
		lastStatus = previous.Response.StatusCode
	}

	// Non-idempotent methods are only followed for 303 See Other, which turns them into a GET.
	if (original.Method == http.MethodPost || original.Method == http.MethodPatch) && lastStatus != http.StatusSeeOther {
		r.log.Warn("Redirect attempted on non-idempotent method, not following", zap.String("method", original.Method), zap.Int("status_code", lastStatus))
		return http.ErrUseLastResponse
	}

	if len(via) >= r.MaxRedirects {
		r.log.Warn("Maximum redirects reached", zap.Int("maxRedirects", r.MaxRedirects))
		return &MaxRedirectsError{MaxRedirects: r.MaxRedirects}
	}

	next := req.URL.String()
	for _, v := range via {
		if v.URL.String() == next {
			r.log.Error("Redirect loop detected", zap.String("url", next), zap.Int("redirectCount", len(via)))
			return &RedirectLoopError{URL: next}
		}
	}

	if !strings.EqualFold(req.URL.Host, original.URL.Host) {
		r.secureRequest(req)
		r.log.Debug("Removed sensitive headers for cross-host redirect", zap.String("from", original.URL.Host), zap.String("to", req.URL.Host))
	}

	r.log.Info("Redirecting request",
		zap.String("originalURL", previous.URL.String()),
		zap.String("newURL", next),
		zap.Int("redirectCount", len(via)),
		zap.Bool("permanent", status.IsPermanentRedirect(lastStatus)),
	)
	return nil
}

// secureRequest removes sensitive headers from the request.
func (r *RedirectHandler) secureRequest(req *http.Request) {
	for _, header := range r.SensitiveHeaders {
		req.Header.Del(header)
	}
}

// RedirectLoopError represents an error when a redirect loop is detected.
type RedirectLoopError struct {
	URL string
}

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("redirect loop detected at %s", e.URL)
}

// MaxRedirectsError represents an error when the maximum number of redirects is reached.
type MaxRedirectsError struct {
	MaxRedirects int
}

func (e *MaxRedirectsError) Error() string {
	return fmt.Sprintf("maximum redirects reached: %d", e.MaxRedirects)
}

// SetupRedirectHandler configures the HTTP client for redirect handling based on the client configuration.
// When redirects are not followed the 3xx response is returned to the caller as is.
func SetupRedirectHandler(client *http.Client, followRedirects bool, maxRedirects int, log logger.Logger) error {
	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		return nil
	}

	if maxRedirects < 1 {
		return log.Error("Invalid maxRedirects value", zap.Int("maxRedirects", maxRedirects))
	}

	NewRedirectHandler(log, maxRedirects).WithRedirectHandling(client)
	log.Info("Redirect handling enabled", zap.Int("MaxRedirects", maxRedirects))
	return nil
}
