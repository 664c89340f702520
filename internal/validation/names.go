// Package validation checks operator input before it reaches the store
// or a daemon. Every failure is a models.ValidationError carrying the
// offending field, which handlers map to a field-level 400.
package validation

import (
	"net"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// dnsLabelRegex validates DNS label format:
// - Must start with a lowercase letter
// - Can contain lowercase letters, numbers, and hyphens
// - Must end with a lowercase letter or number
var dnsLabelRegex = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// hostLabelRegex validates one label of a hostname. Unlike node names,
// hostname labels may start with a digit and mix case.
var hostLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// MaxServerNameLength bounds display names so they fit the servers.name
// column.
const MaxServerNameLength = 191

// ValidateServerName validates a server's display name.
//
// Server names are free text shown in listings and console headers, so
// the only hard rules are that one exists, it fits the column, and it
// carries no control characters.
func ValidateServerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &models.ValidationError{
			Field:   "name",
			Message: "server name is required",
		}
	}

	if len(name) > MaxServerNameLength {
		return &models.ValidationError{
			Field:   "name",
			Message: "server name must be 191 characters or less",
		}
	}

	if !utf8.ValidString(name) {
		return &models.ValidationError{
			Field:   "name",
			Message: "server name must be valid UTF-8",
		}
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return &models.ValidationError{
				Field:   "name",
				Message: "server name cannot contain control characters",
			}
		}
	}

	return nil
}

// ValidateNodeName validates that a node name is a valid DNS label.
//
// DNS label rules:
// - Must be 1-63 characters long
// - Must start with a lowercase letter
// - Can contain lowercase letters, numbers, and hyphens
// - Cannot start or end with a hyphen
func ValidateNodeName(name string) error {
	if name == "" {
		return &models.ValidationError{
			Field:   "name",
			Message: "node name is required",
		}
	}

	if len(name) > 63 {
		return &models.ValidationError{
			Field:   "name",
			Message: "node name must be 63 characters or less",
		}
	}

	if name[0] == '-' {
		return &models.ValidationError{
			Field:   "name",
			Message: "node name cannot start with a hyphen",
		}
	}

	if name[len(name)-1] == '-' {
		return &models.ValidationError{
			Field:   "name",
			Message: "node name cannot end with a hyphen",
		}
	}

	if !dnsLabelRegex.MatchString(name) {
		return &models.ValidationError{
			Field:   "name",
			Message: "node name must be a valid DNS label (lowercase letters, numbers, and hyphens, starting with a letter)",
		}
	}

	return nil
}

// ValidateFQDN validates the address the panel dials a daemon on. A
// literal IP address is accepted alongside hostnames.
func ValidateFQDN(fqdn string) error {
	if fqdn == "" {
		return &models.ValidationError{
			Field:   "fqdn",
			Message: "fqdn is required",
		}
	}

	if net.ParseIP(fqdn) != nil {
		return nil
	}

	if len(fqdn) > 253 {
		return &models.ValidationError{
			Field:   "fqdn",
			Message: "fqdn must be 253 characters or less",
		}
	}

	for _, label := range strings.Split(fqdn, ".") {
		if len(label) == 0 || len(label) > 63 || !hostLabelRegex.MatchString(label) {
			return &models.ValidationError{
				Field:   "fqdn",
				Message: "fqdn must be a valid hostname or IP address",
			}
		}
	}

	return nil
}

// ValidateScheme validates a node's daemon scheme.
func ValidateScheme(scheme string) error {
	if scheme != "http" && scheme != "https" {
		return &models.ValidationError{
			Field:   "scheme",
			Message: "scheme must be \"http\" or \"https\"",
		}
	}
	return nil
}
