// response/success.go
/* Responsible for handling successful API responses. The body is read once by the client and
decoded here based on the content type (JSON, XML, text or binary) and the type of out. */
package response

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/deploymenttheory/go-api-session-client/logger"
	"go.uber.org/zap"
)

// contentHandler defines the signature for unmarshaling content from an io.Reader.
type contentHandler func(io.Reader, any, logger.Logger, string) error

// responseUnmarshallers maps MIME types to the corresponding contentHandler functions.
var responseUnmarshallers = map[string]contentHandler{
	"application/json": handlerUnmarshalJSON,
	"application/xml":  handlerUnmarshalXML,
	"text/xml":         handlerUnmarshalXML,
}

// HandleAPISuccessResponse decodes an already read success body into out.
// A nil out or an empty body is not an error. *[]byte and *string receive the raw body
// regardless of content type; anything else is decoded by MIME type.
func HandleAPISuccessResponse(resp *http.Response, body []byte, out any, log logger.Logger) error {
	if out == nil || len(body) == 0 {
		return nil
	}

	switch target := out.(type) {
	case *[]byte:
		*target = append((*target)[:0], body...)
		return nil
	case *string:
		*target = string(body)
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	contentDisposition := resp.Header.Get("Content-Disposition")
	contentTypeNoParams, _ := parseHeader(contentType)

	if handler, ok := responseUnmarshallers[contentTypeNoParams]; ok {
		return handler(bytes.NewReader(body), out, log, contentType)
	}
	if strings.HasSuffix(contentTypeNoParams, "+json") {
		return handlerUnmarshalJSON(bytes.NewReader(body), out, log, contentType)
	}

	if isBinaryData(contentType, contentDisposition) {
		return handleBinaryData(bytes.NewReader(body), log, out, contentDisposition)
	}

	err := fmt.Errorf("unexpected MIME type: %s", contentType)
	log.Error("Unmarshal error", zap.String("content_type", contentType), zap.Error(err))
	return err
}

// handlerUnmarshalJSON unmarshals JSON content from an io.Reader into the provided output structure.
func handlerUnmarshalJSON(reader io.Reader, out any, log logger.Logger, mimeType string) error {
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		log.Error("JSON Unmarshal error", zap.Error(err))
		return fmt.Errorf("decoding JSON response: %w", err)
	}
	log.Debug("Successfully unmarshalled JSON response", zap.String("content_type", mimeType))
	return nil
}

// handlerUnmarshalXML unmarshals XML content from an io.Reader into the provided output structure.
func handlerUnmarshalXML(reader io.Reader, out any, log logger.Logger, mimeType string) error {
	if err := xml.NewDecoder(reader).Decode(out); err != nil {
		log.Error("XML Unmarshal error", zap.Error(err))
		return fmt.Errorf("decoding XML response: %w", err)
	}
	log.Debug("Successfully unmarshalled XML response", zap.String("content_type", mimeType))
	return nil
}

// isBinaryData checks if the MIME type or Content-Disposition indicates binary data.
func isBinaryData(contentType, contentDisposition string) bool {
	return strings.Contains(contentType, "application/octet-stream") || strings.HasPrefix(contentDisposition, "attachment")
}

// handleBinaryData streams binary data to an io.Writer.
func handleBinaryData(reader io.Reader, log logger.Logger, out any, contentDisposition string) error {
	writer, ok := out.(io.Writer)
	if !ok {
		return errors.New("output parameter is not suitable for binary data (*[]byte or io.Writer)")
	}
	if _, err := io.Copy(writer, reader); err != nil {
		log.Error("Failed to stream binary data to io.Writer", zap.Error(err))
		return err
	}

	if contentDisposition != "" {
		_, params := parseHeader(contentDisposition)
		if filename, ok := params["filename"]; ok {
			log.Debug("Extracted filename from Content-Disposition", zap.String("filename", filename))
		}
	}

	return nil
}
