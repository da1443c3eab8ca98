// identity/tokenendpoint/validation.go
package tokenendpoint

import (
	"regexp"

	"github.com/deploymenttheory/go-api-session-client/session"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9!@#$%^&*()_\-\+=\[\]{\}\\|;:'",<.>/?]+$`)

// IsValidUsername checks if the provided username contains only alphanumeric characters and
// password safe special characters.
func IsValidUsername(username string) (bool, string) {
	if usernamePattern.MatchString(username) {
		return true, ""
	}
	return false, "Username must contain only alphanumeric characters and password safe special characters (!@#$%^&*()_-+=[{]}\\|;:'\",<.>/?)."
}

// IsValidPassword checks that a password was supplied.
func IsValidPassword(password string) (bool, string) {
	if password != "" {
		return true, ""
	}
	return false, "Password must not be empty."
}

// ValidateCredentials checks the username and password used for basic authentication.
func ValidateCredentials(creds session.Credentials) (bool, string) {
	if ok, msg := IsValidUsername(creds.Username); !ok {
		return false, msg
	}
	return IsValidPassword(creds.Password)
}
