// status.go
// Package status classifies HTTP status codes for the request pipeline.
package status

import (
	"fmt"
	"net/http"
)

// DefaultAuthFailureStatusCode is the status that signals an expired or rejected access token.
const DefaultAuthFailureStatusCode = http.StatusUnauthorized

// IsSuccessStatusCode reports whether the status completes a request (2xx, or 3xx that was not followed).
func IsSuccessStatusCode(statusCode int) bool {
	return statusCode >= 200 && statusCode < 400
}

// IsAuthorizationFailure reports whether statusCode is the configured authorization-failure status.
// A zero authFailureStatusCode falls back to DefaultAuthFailureStatusCode.
func IsAuthorizationFailure(statusCode int, authFailureStatusCode int) bool {
	if authFailureStatusCode == 0 {
		authFailureStatusCode = DefaultAuthFailureStatusCode
	}
	return statusCode == authFailureStatusCode
}

// IsRedirectStatusCode checks if the provided HTTP status code is one of the redirect codes.
// 301, 302, 303, 307 and 308 instruct the client to repeat the request against the Location header.
func IsRedirectStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// IsPermanentRedirect checks if the provided HTTP status code is one of the permanent redirect codes.
func IsPermanentRedirect(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// IsTransientError checks if an HTTP response indicates a transient server-side error.
func IsTransientError(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRateLimitError checks if the provided response indicates a rate limit error.
func IsRateLimitError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

var statusMessages = map[int]string{
	http.StatusOK:                            "Request successful.",
	http.StatusCreated:                       "Request to create or update resource successful.",
	http.StatusAccepted:                      "The request was accepted for processing, but the processing has not completed.",
	http.StatusNoContent:                     "Request successful. No content to send for this request.",
	http.StatusBadRequest:                    "Bad request. Verify the syntax of the request.",
	http.StatusUnauthorized:                  "Authentication failed. Verify the credentials being used for the request.",
	http.StatusPaymentRequired:               "Payment required. Access to the requested resource requires payment.",
	http.StatusForbidden:                     "Invalid permissions. Verify the account has the proper permissions for the resource.",
	http.StatusNotFound:                      "Resource not found. Verify the URL path is correct.",
	http.StatusMethodNotAllowed:              "Method not allowed. The method specified is not allowed for the resource.",
	http.StatusNotAcceptable:                 "Not acceptable. The server cannot produce a response matching the list of acceptable values.",
	http.StatusProxyAuthRequired:             "Proxy authentication required. You must authenticate with a proxy server before this request can be served.",
	http.StatusRequestTimeout:                "Request timeout. The server timed out waiting for the request.",
	http.StatusConflict:                      "Conflict. The request could not be processed because of conflict in the request.",
	http.StatusGone:                          "Gone. The resource requested is no longer available and will not be available again.",
	http.StatusPreconditionFailed:            "Precondition failed. The server does not meet one of the preconditions specified in the request.",
	http.StatusRequestEntityTooLarge:         "Payload too large. The request is larger than the server is willing or able to process.",
	http.StatusUnsupportedMediaType:          "Unsupported media type. The request entity has a media type which the server or resource does not support.",
	http.StatusUnprocessableEntity:           "Unprocessable entity. The server understands the content type and syntax of the request but was unable to process the contained instructions.",
	http.StatusLocked:                        "Locked. The resource that is being accessed is locked.",
	http.StatusTooManyRequests:               "Too many requests. The user has sent too many requests in a given amount of time.",
	http.StatusInternalServerError:           "Internal server error. The server encountered an unexpected condition that prevented it from fulfilling the request.",
	http.StatusNotImplemented:                "Not implemented. The server does not support the functionality required to fulfill the request.",
	http.StatusBadGateway:                    "Bad gateway. The server received an invalid response from the upstream server while trying to fulfill the request.",
	http.StatusServiceUnavailable:            "Service unavailable. The server is currently unable to handle the request due to temporary overloading or maintenance.",
	http.StatusGatewayTimeout:                "Gateway timeout. The server did not receive a timely response from the upstream server.",
	http.StatusNetworkAuthenticationRequired: "Network authentication required. The client needs to authenticate to gain network access.",
}

// TranslateStatusCode provides a human-readable message for HTTP status codes.
func TranslateStatusCode(resp *http.Response) string {
	if resp == nil {
		return "No status code received, possible network or connection error."
	}
	if message, exists := statusMessages[resp.StatusCode]; exists {
		return message
	}
	return fmt.Sprintf("Unknown status code: %d", resp.StatusCode)
}
