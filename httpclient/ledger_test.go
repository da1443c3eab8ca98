package httpclient

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRetryLedger(t *testing.T) {
	ledger := NewMemoryRetryLedger()
	key := RouteKey("GET", "https://api.example.com/widgets")

	assert.False(t, ledger.HasRetried(key))
	ledger.MarkRetried(key)
	assert.True(t, ledger.HasRetried(key))
	assert.Equal(t, 1, ledger.Len())

	ledger.Clear(key)
	assert.False(t, ledger.HasRetried(key))
	assert.Equal(t, 0, ledger.Len())

	// Clearing an unknown route is a no-op.
	ledger.Clear("GET https://api.example.com/unknown")
}

func TestMemoryRetryLedger_Concurrent(t *testing.T) {
	ledger := NewMemoryRetryLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := RouteKey("GET", "https://api.example.com/widgets")
			ledger.MarkRetried(key)
			_ = ledger.HasRetried(key)
			if i%2 == 0 {
				ledger.Clear(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, ledger.Len(), 1)
}

func TestRouteKey(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		want   string
	}{
		{
			name:   "method is upper-cased",
			method: "get",
			url:    "https://api.example.com/widgets",
			want:   "GET https://api.example.com/widgets",
		},
		{
			name:   "scheme and host are lower-cased",
			method: "GET",
			url:    "HTTPS://API.Example.com/Widgets",
			want:   "GET https://api.example.com/Widgets",
		},
		{
			name:   "path is cleaned",
			method: "GET",
			url:    "https://api.example.com/a//b/../widgets",
			want:   "GET https://api.example.com/a/widgets",
		},
		{
			name:   "trailing slash is kept",
			method: "GET",
			url:    "https://api.example.com/test/http-service/",
			want:   "GET https://api.example.com/test/http-service/",
		},
		{
			name:   "query is sorted",
			method: "GET",
			url:    "https://api.example.com/widgets?b=2&a=1&a=0",
			want:   "GET https://api.example.com/widgets?a=0&a=1&b=2",
		},
		{
			name:   "fragment is dropped",
			method: "GET",
			url:    "https://api.example.com/widgets#top",
			want:   "GET https://api.example.com/widgets",
		},
		{
			name:   "relative path",
			method: "post",
			url:    "/widgets/",
			want:   "POST /widgets/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RouteKey(tt.method, tt.url))
		})
	}
}

func TestRouteKey_DistinguishesMethods(t *testing.T) {
	assert.NotEqual(t,
		RouteKey("GET", "https://api.example.com/widgets"),
		RouteKey("POST", "https://api.example.com/widgets"),
	)
}
