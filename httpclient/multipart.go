// httpclient/multipart.go
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deploymenttheory/go-api-session-client/response"
	"go.uber.org/zap"
)

// DoMultiPartRequest uploads files (form field name to file path) and params as multipart form
// data. The form is built in memory so it can be replayed after a token refresh.
func (c *Client) DoMultiPartRequest(ctx context.Context, method, endpoint string, files map[string]string, params map[string]string, out any) (*http.Response, error) {
	log := c.Logger
	method = strings.ToUpper(method)

	if method != http.MethodPost && method != http.MethodPut {
		log.Error("HTTP method not supported for multipart request", zap.String("method", method))
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	body, contentType, err := buildMultipartBody(files, params)
	if err != nil {
		log.Error("Failed to build multipart body", zap.Error(err))
		return nil, err
	}

	log.Debug("Executing multipart request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("files", len(files)),
		zap.Int("size", len(body)),
	)

	requestURL := c.buildURL(endpoint)
	req := &outgoingRequest{
		method:      method,
		url:         requestURL,
		key:         RouteKey(method, requestURL),
		body:        body,
		contentType: contentType,
	}

	resp, data, err := c.executeRequest(ctx, req)
	if err != nil {
		return resp, err
	}
	return resp, response.HandleAPISuccessResponse(resp, data, out, log)
}

func buildMultipartBody(files map[string]string, params map[string]string) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fieldNames := make([]string, 0, len(files))
	for fieldName := range files {
		fieldNames = append(fieldNames, fieldName)
	}
	sort.Strings(fieldNames)

	for _, fieldName := range fieldNames {
		if err := addFormFile(writer, fieldName, files[fieldName]); err != nil {
			return nil, "", err
		}
	}

	for key, val := range params {
		if err := writer.WriteField(key, val); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

func addFormFile(writer *multipart.Writer, fieldName, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(fieldName, filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("creating form file %s: %w", fieldName, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copying %s: %w", filePath, err)
	}
	return nil
}
