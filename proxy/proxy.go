// proxy/proxy.go
package proxy

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/deploymenttheory/go-api-session-client/logger"
	"go.uber.org/zap"
)

// InitializeProxy routes the client's traffic through proxyURL. Proxy authentication uses
// username/password when both are given, otherwise authToken as a bearer credential.
// The existing *http.Transport is cloned so its TLS and timeout settings are kept.
func InitializeProxy(httpClient *http.Client, proxyURL, proxyUsername, proxyPassword, authToken string, log logger.Logger) error {
	if proxyURL == "" {
		return nil
	}

	parsedProxyURL, err := url.Parse(proxyURL)
	if err != nil || parsedProxyURL.Scheme == "" || parsedProxyURL.Host == "" {
		log.Error("Failed to parse proxy URL", zap.String("ProxyURL", proxyURL), zap.Error(err))
		return fmt.Errorf("invalid proxy URL: %q", proxyURL)
	}

	transport := baseTransport(httpClient)
	connectHeader := http.Header{}

	switch {
	case proxyUsername != "" && proxyPassword != "":
		parsedProxyURL.User = url.UserPassword(proxyUsername, proxyPassword)
		credentials := base64.StdEncoding.EncodeToString([]byte(proxyUsername + ":" + proxyPassword))
		connectHeader.Set("Proxy-Authorization", "Basic "+credentials)
	case authToken != "":
		connectHeader.Set("Proxy-Authorization", "Bearer "+authToken)
	}

	transport.Proxy = http.ProxyURL(parsedProxyURL)
	if len(connectHeader) > 0 {
		transport.ProxyConnectHeader = connectHeader
	}
	httpClient.Transport = transport

	log.Info("Proxy configured", zap.String("ProxyURL", parsedProxyURL.Redacted()))
	return nil
}

func baseTransport(httpClient *http.Client) *http.Transport {
	if t, ok := httpClient.Transport.(*http.Transport); ok && t != nil {
		return t.Clone()
	}
	return http.DefaultTransport.(*http.Transport).Clone()
}
