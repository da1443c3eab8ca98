// httpclient/download.go
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// DoDownloadRequest performs an authenticated download and writes the response body to out.
// It goes through the same refresh and replay handling as DoRequest.
func (c *Client) DoDownloadRequest(ctx context.Context, method, endpoint string, out io.Writer) (*http.Response, error) {
	resp, data, err := c.Request(ctx, method, endpoint, nil)
	if err != nil {
		return resp, err
	}

	written, err := out.Write(data)
	if err != nil {
		return resp, fmt.Errorf("writing downloaded data: %w", err)
	}

	c.Logger.Debug("Download completed",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("bytes", written),
	)
	return resp, nil
}
