package models

import "time"

// BlueprintVariable describes one environment variable a blueprint
// exposes to servers built from it. Rules is a comma-separated list of
// validation rules ("required", "numeric", "max:N").
type BlueprintVariable struct {
	Name         string `json:"name"`
	EnvKey       string `json:"env_key"`
	DefaultValue string `json:"default_value"`
	Rules        string `json:"rules,omitempty"`
}

// Blueprint is a reusable server template: which images it may run, how
// the process starts, and which environment variables it accepts.
type Blueprint struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	DockerImages   []string            `json:"docker_images"`
	StartupCommand string              `json:"startup_command"`
	Variables      []BlueprintVariable `json:"variables,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// SupportsImage reports whether the image is one the blueprint allows.
func (b *Blueprint) SupportsImage(image string) bool {
	for _, img := range b.DockerImages {
		if img == image {
			return true
		}
	}
	return false
}

// BuildEnvironment overlays per-server values onto the blueprint's
// variable defaults. Keys the blueprint does not declare are ignored.
func (b *Blueprint) BuildEnvironment(overrides map[string]string) map[string]string {
	env := make(map[string]string, len(b.Variables))
	for _, v := range b.Variables {
		env[v.EnvKey] = v.DefaultValue
		if val, ok := overrides[v.EnvKey]; ok {
			env[v.EnvKey] = val
		}
	}
	return env
}
