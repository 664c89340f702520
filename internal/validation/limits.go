package validation

import (
	"net"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// ValidateLimits validates a server's resource limits. CPUPercent zero
// means unmetered, so only negatives are rejected on that axis.
func ValidateLimits(limits models.Limits) error {
	if limits.MemoryMB <= 0 {
		return &models.ValidationError{
			Field:   "limits.memory_mb",
			Message: "memory limit must be a positive number of megabytes",
		}
	}

	if limits.DiskMB <= 0 {
		return &models.ValidationError{
			Field:   "limits.disk_mb",
			Message: "disk limit must be a positive number of megabytes",
		}
	}

	if limits.CPUPercent < 0 {
		return &models.ValidationError{
			Field:   "limits.cpu_percent",
			Message: "cpu limit cannot be negative",
		}
	}

	return nil
}

// ValidatePortRange validates an allocation range request. Both ends
// must be usable ports and the range must not be inverted.
func ValidatePortRange(startPort, endPort int) error {
	if startPort < 1 || startPort > 65535 {
		return &models.ValidationError{
			Field:   "start_port",
			Message: "start port must be between 1 and 65535",
		}
	}

	if endPort < 1 || endPort > 65535 {
		return &models.ValidationError{
			Field:   "end_port",
			Message: "end port must be between 1 and 65535",
		}
	}

	if startPort > endPort {
		return &models.ValidationError{
			Field:   "start_port",
			Message: "start port cannot be greater than end port",
		}
	}

	return nil
}

// ValidateIP validates the bind address for an allocation range.
func ValidateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return &models.ValidationError{
			Field:   "ip",
			Message: "ip must be a valid IPv4 or IPv6 address",
		}
	}
	return nil
}
