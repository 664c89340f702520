package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

// Rule names a blueprint variable may carry. Rules is a comma-separated
// list such as "required,numeric,max:64".
const (
	RuleRequired = "required"
	RuleNumeric  = "numeric"
	RuleMax      = "max"
)

// rules is the parsed form of a variable's rule string.
type rules struct {
	required bool
	numeric  bool
	hasMax   bool
	max      int64
}

// parseRules parses a rule string. An empty string means no rules.
func parseRules(spec string) (rules, error) {
	var r rules
	if strings.TrimSpace(spec) == "" {
		return r, nil
	}

	for _, raw := range strings.Split(spec, ",") {
		rule := strings.TrimSpace(raw)
		switch {
		case rule == RuleRequired:
			r.required = true
		case rule == RuleNumeric:
			r.numeric = true
		case strings.HasPrefix(rule, RuleMax+":"):
			n, err := strconv.ParseInt(strings.TrimPrefix(rule, RuleMax+":"), 10, 64)
			if err != nil || n < 0 {
				return rules{}, fmt.Errorf("invalid max rule %q", rule)
			}
			r.hasMax = true
			r.max = n
		default:
			return rules{}, fmt.Errorf("unknown rule %q", rule)
		}
	}
	return r, nil
}

// ValidateVariableValue checks one environment value against its
// blueprint variable's rules. With a numeric rule, max bounds the
// value; otherwise it bounds the length.
func ValidateVariableValue(v models.BlueprintVariable, value string) error {
	r, err := parseRules(v.Rules)
	if err != nil {
		return &models.ValidationError{
			Field:   "environment." + v.EnvKey,
			Message: err.Error(),
		}
	}

	if value == "" {
		if r.required {
			return &models.ValidationError{
				Field:   "environment." + v.EnvKey,
				Message: fmt.Sprintf("%s is required", v.Name),
			}
		}
		// Absent optional values skip the remaining rules.
		return nil
	}

	if err := ValidateEnvValue(value); err != nil {
		return &models.ValidationError{
			Field:   "environment." + v.EnvKey,
			Message: fmt.Sprintf("%s is too long", v.Name),
		}
	}

	var parsed int64
	if r.numeric {
		parsed, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return &models.ValidationError{
				Field:   "environment." + v.EnvKey,
				Message: fmt.Sprintf("%s must be numeric", v.Name),
			}
		}
	}

	if r.hasMax {
		if r.numeric {
			if parsed > r.max {
				return &models.ValidationError{
					Field:   "environment." + v.EnvKey,
					Message: fmt.Sprintf("%s must be at most %d", v.Name, r.max),
				}
			}
		} else if int64(len(value)) > r.max {
			return &models.ValidationError{
				Field:   "environment." + v.EnvKey,
				Message: fmt.Sprintf("%s must be %d characters or less", v.Name, r.max),
			}
		}
	}

	return nil
}

// ValidateEnvironment checks a server's effective environment against
// every variable the blueprint declares. Call it on the result of
// Blueprint.BuildEnvironment so defaults are already applied.
func ValidateEnvironment(bp *models.Blueprint, env map[string]string) error {
	for _, v := range bp.Variables {
		if err := ValidateVariableValue(v, env[v.EnvKey]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBlueprintVariables validates a blueprint's variable
// declarations at blueprint create/update time, before any server can
// bind them.
func ValidateBlueprintVariables(vars []models.BlueprintVariable) error {
	seen := make(map[string]bool, len(vars))
	for i, v := range vars {
		field := fmt.Sprintf("variables[%d]", i)

		if strings.TrimSpace(v.Name) == "" {
			return &models.ValidationError{
				Field:   field + ".name",
				Message: "variable name is required",
			}
		}
		if err := ValidateEnvKey(v.EnvKey); err != nil {
			return &models.ValidationError{
				Field:   field + ".env_key",
				Message: err.(*models.ValidationError).Message,
			}
		}
		if seen[v.EnvKey] {
			return &models.ValidationError{
				Field:   field + ".env_key",
				Message: fmt.Sprintf("duplicate environment key %q", v.EnvKey),
			}
		}
		seen[v.EnvKey] = true

		if _, err := parseRules(v.Rules); err != nil {
			return &models.ValidationError{
				Field:   field + ".rules",
				Message: err.Error(),
			}
		}
	}
	return nil
}
