// httpclient/methods.go
package httpclient

import (
	"context"
	"net/http"
)

/* Ref: https://www.rfc-editor.org/rfc/rfc7231#section-8.1.3

+---------+------+------------+
| Method  | Safe | Idempotent |
+---------+------+------------+
| CONNECT | no   | no         |
| DELETE  | no   | yes        |
| GET     | yes  | yes        |
| HEAD    | yes  | yes        |
| OPTIONS | yes  | yes        |
| POST    | no   | no         |
| PUT     | no   | yes        |
| TRACE   | yes  | yes        |
+---------+------+------------+
*/

// IsIdempotentHTTPMethod checks if the given HTTP method is idempotent.
// The refresh replay is not limited to idempotent methods: a rejected request was never processed.
func IsIdempotentHTTPMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Get sends an authenticated GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, endpoint string, out any) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodGet, endpoint, nil, out)
}

// Post sends an authenticated POST with body and decodes the response into out.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodPost, endpoint, body, out)
}

// Put sends an authenticated PUT with body and decodes the response into out.
func (c *Client) Put(ctx context.Context, endpoint string, body, out any) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodPut, endpoint, body, out)
}

// Patch sends an authenticated PATCH with body and decodes the response into out.
func (c *Client) Patch(ctx context.Context, endpoint string, body, out any) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodPatch, endpoint, body, out)
}

// Delete sends an authenticated DELETE and decodes the response into out.
func (c *Client) Delete(ctx context.Context, endpoint string, out any) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodDelete, endpoint, nil, out)
}
