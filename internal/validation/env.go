package validation

import (
	"regexp"
	"strings"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// DaemonEnvPrefix is the namespace the daemon overlays onto a
// container's environment at start time (SS_SERVER_UUID and friends).
// Blueprint variables must not shadow it.
const DaemonEnvPrefix = "SS_"

// envKeyPattern is the POSIX shell name form: a letter or underscore
// followed by letters, digits, and underscores.
var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const (
	maxEnvKeyLen   = 256
	maxEnvValueLen = 32 * 1024
)

// reservedEnvKeys are bare names the daemon claims for itself.
var reservedEnvKeys = map[string]bool{
	"STARTUP": true,
}

// ValidateEnvKey checks a blueprint variable's environment key. Keys
// follow the POSIX name form, stay under 256 characters, and must not
// collide with the daemon's reserved names or its SS_ namespace.
func ValidateEnvKey(key string) error {
	fail := func(msg string) error {
		return &models.ValidationError{Field: "env_key", Message: msg}
	}

	switch {
	case key == "":
		return fail("environment key is required")
	case len(key) > maxEnvKeyLen:
		return fail("environment key must be 256 characters or less")
	case !envKeyPattern.MatchString(key):
		return fail("environment key must start with a letter or underscore and contain only letters, digits, and underscores")
	case strings.HasPrefix(key, DaemonEnvPrefix):
		return fail("the " + DaemonEnvPrefix + " namespace is reserved for daemon-injected variables")
	case reservedEnvKeys[key]:
		return fail("environment key " + key + " is injected by the daemon and cannot be redefined")
	}

	return nil
}

// ValidateEnvValue bounds a single environment value at 32KB. Daemons
// pass the whole map on the container create call, so oversized values
// would bloat every sync.
func ValidateEnvValue(value string) error {
	if len(value) > maxEnvValueLen {
		return &models.ValidationError{
			Field:   "value",
			Message: "environment value must be 32KB or less",
		}
	}
	return nil
}
