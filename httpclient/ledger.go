// httpclient/ledger.go
package httpclient

import (
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
)

// RetryLedger records which routes already used their single refresh-and-replay in the
// current failure episode. Implementations must be safe for concurrent use.
type RetryLedger interface {
	HasRetried(key string) bool
	MarkRetried(key string)
	Clear(key string)
}

// MemoryRetryLedger is the default RetryLedger. Its size is bounded by the number of distinct
// routes that failed authorization; successful completions remove their entry.
type MemoryRetryLedger struct {
	mu      sync.Mutex
	retried map[string]struct{}
}

// NewMemoryRetryLedger returns an empty ledger.
func NewMemoryRetryLedger() *MemoryRetryLedger {
	return &MemoryRetryLedger{retried: make(map[string]struct{})}
}

func (l *MemoryRetryLedger) HasRetried(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.retried[key]
	return ok
}

func (l *MemoryRetryLedger) MarkRetried(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retried[key] = struct{}{}
}

func (l *MemoryRetryLedger) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.retried, key)
}

// Len returns the number of routes currently marked as retried.
func (l *MemoryRetryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.retried)
}

// RouteKey identifies a route in the ledger as "METHOD normalized-url". The scheme and host are
// lower-cased, the path is cleaned, query parameters are sorted and the fragment is dropped.
func RouteKey(method, rawURL string) string {
	method = strings.ToUpper(method)
	u, err := url.Parse(rawURL)
	if err != nil {
		return method + " " + rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.Path != "" {
		cleaned := path.Clean(u.Path)
		if strings.HasSuffix(u.Path, "/") && cleaned != "/" {
			cleaned += "/"
		}
		u.Path = cleaned
		u.RawPath = ""
	}

	if u.RawQuery != "" {
		query := u.Query()
		for _, values := range query {
			sort.Strings(values)
		}
		// Encode sorts by key.
		u.RawQuery = query.Encode()
	}

	return method + " " + u.String()
}
