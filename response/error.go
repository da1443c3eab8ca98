// response/error.go
// Package response decodes API responses: success bodies into caller supplied values and
// failure bodies into *APIError values that keep the original status and payload.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/deploymenttheory/go-api-session-client/logger"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// APIError represents an api error response. It is returned unchanged to callers so validation
// failures (e.g. 400 with field detail) stay distinguishable from authorization failures.
type APIError struct {
	StatusCode  int         `json:"status_code"`
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	Errors      []Errors    `json:"errors,omitempty"`
	Message     string      `json:"message"`
	Details     []string    `json:"details,omitempty"`
	RawResponse string      `json:"raw_response"`
	Header      http.Header `json:"-"`
}

// Errors represents individual error details within an API error response.
type Errors struct {
	Code        string  `json:"code,omitempty"`
	Field       string  `json:"field,omitempty"`
	Description string  `json:"description,omitempty"`
	ID          *string `json:"id,omitempty"`
}

// Error returns a string representation of the APIError.
func (e *APIError) Error() string {
	message := e.Message
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("API error: %s %s returned %d: %s", e.Method, e.URL, e.StatusCode, message)
}

// jsonErrorBody covers the error shapes commonly returned by REST backends and OAuth servers.
type jsonErrorBody struct {
	Message          string          `json:"message"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          []string        `json:"details"`
	Errors           []Errors        `json:"errors"`
}

// HandleAPIErrorResponse builds an *APIError from a failed response whose body has already been read.
func HandleAPIErrorResponse(resp *http.Response, body []byte, log logger.Logger) *APIError {
	apiError := &APIError{
		StatusCode:  resp.StatusCode,
		Message:     "API Error Response",
		RawResponse: string(body),
		Header:      resp.Header,
	}
	if resp.Request != nil {
		apiError.Method = resp.Request.Method
		if resp.Request.URL != nil {
			apiError.URL = resp.Request.URL.String()
		}
	}

	mimeType, _ := parseHeader(resp.Header.Get("Content-Type"))
	switch mimeType {
	case "application/json", "application/problem+json":
		parseJSONResponse(body, apiError)
	case "application/xml", "text/xml":
		parseXMLResponse(body, apiError)
	case "text/html":
		parseHTMLResponse(body, apiError)
	case "text/plain":
		parseTextResponse(body, apiError)
	default:
		if len(body) == 0 {
			apiError.Message = http.StatusText(resp.StatusCode)
		} else {
			apiError.Message = "Unknown content type error"
		}
	}

	log.Debug("API error response parsed",
		zap.Int("status_code", apiError.StatusCode),
		zap.String("content_type", mimeType),
		zap.String("message", apiError.Message),
	)

	return apiError
}

// parseJSONResponse attempts to parse the JSON error response and update the APIError structure.
func parseJSONResponse(bodyBytes []byte, apiError *APIError) {
	var body jsonErrorBody
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		apiError.Message = "Failed to decode JSON error response"
		return
	}

	apiError.Details = body.Details
	apiError.Errors = body.Errors

	switch {
	case body.Message != "":
		apiError.Message = body.Message
	case body.ErrorDescription != "":
		apiError.Message = body.ErrorDescription
	case len(body.Error) > 0:
		apiError.Message = errorFieldMessage(body.Error)
	}

	if apiError.Message == "" {
		apiError.Message = "An unknown error occurred"
	}
}

// errorFieldMessage reads an "error" member that is either a string or an object with a message.
func errorFieldMessage(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asObject struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		if asObject.Message != "" {
			return asObject.Message
		}
		return asObject.Code
	}
	return ""
}

// parseXMLResponse dynamically parses XML error responses and accumulates potential error messages.
func parseXMLResponse(bodyBytes []byte, apiError *APIError) {
	doc, err := xmlquery.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		apiError.Message = "Failed to parse XML error response"
		return
	}

	var messages []string
	var traverse func(*xmlquery.Node)
	traverse = func(n *xmlquery.Node) {
		if n.Type == xmlquery.TextNode && strings.TrimSpace(n.Data) != "" {
			messages = append(messages, strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if len(messages) > 0 {
		apiError.Message = strings.Join(messages, "; ")
	} else {
		apiError.Message = "Failed to extract error details from XML response"
	}
}

// parseTextResponse updates the APIError structure based on a plain text error response.
func parseTextResponse(bodyBytes []byte, apiError *APIError) {
	apiError.Message = strings.TrimSpace(string(bodyBytes))
}

// parseHTMLResponse extracts meaningful information from an HTML error response,
// concatenating all text within <p> tags and links found within them.
func parseHTMLResponse(bodyBytes []byte, apiError *APIError) {
	doc, err := html.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		apiError.Message = "Failed to parse HTML error response"
		return
	}

	var messages []string
	var parse func(*html.Node)
	parse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			var pContent strings.Builder
			var traverseChildren func(*html.Node)
			traverseChildren = func(c *html.Node) {
				if c.Type == html.TextNode {
					pContent.WriteString(strings.TrimSpace(c.Data) + " ")
				} else if c.Type == html.ElementNode && c.Data == "a" {
					for _, attr := range c.Attr {
						if attr.Key == "href" {
							pContent.WriteString("[Link: " + attr.Val + "] ")
							break
						}
					}
				}
				for child := c.FirstChild; child != nil; child = child.NextSibling {
					traverseChildren(child)
				}
			}
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				traverseChildren(child)
			}
			if finalContent := strings.TrimSpace(pContent.String()); finalContent != "" {
				messages = append(messages, finalContent)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parse(c)
		}
	}
	parse(doc)

	if len(messages) > 0 {
		apiError.Message = strings.Join(messages, "; ")
	} else {
		apiError.Message = "HTML Error: See 'RawResponse' field for details."
	}
}
