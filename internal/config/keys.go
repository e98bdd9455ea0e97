package config

import "os"

// SecretSource represents where a secret value comes from.
type SecretSource string

const (
	SourceEnv    SecretSource = "env"
	SourceConfig SecretSource = "config"
	SourceNone   SecretSource = "none"
)

// SecretStatus represents the status of a credential or endpoint.
type SecretStatus struct {
	Name   string       `json:"name"`
	Source SecretSource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "abc...xyz"
}

// CheckSecrets reports the state of every credential the pipeline reads.
func CheckSecrets(cfg *Config) []SecretStatus {
	return []SecretStatus{
		checkSecret("Polygon API Key", cfg.News.PolygonKey, "NEWSENTIMENT_NEWS_POLYGON_KEY", "POLYGON_API_KEY"),
	}
}

// checkSecret checks if a value is set and which env var, if any, supplied it.
func checkSecret(name, value string, envVars ...string) SecretStatus {
	status := SecretStatus{
		Name:   name,
		IsSet:  value != "",
		Source: SourceNone,
	}
	if value == "" {
		return status
	}

	status.Source = SourceConfig
	for _, env := range envVars {
		if os.Getenv(env) == value {
			status.Source = SourceEnv
			break
		}
	}
	status.Masked = maskSecret(value)
	return status
}

// maskSecret masks a secret for display, showing only first 3 and last 3 chars.
func maskSecret(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
