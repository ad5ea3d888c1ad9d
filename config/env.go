package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment represents the current runtime environment
type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	CI          Environment = "ci"
	Production  Environment = "production"
)

// GetEnvironment determines the current environment from CI and ENV.
func GetEnvironment() Environment {
	if os.Getenv("CI") == "true" {
		return CI
	}
	env, err := ParseEnvironment(os.Getenv("ENV"))
	if err != nil {
		return Development
	}
	return env
}

// ParseEnvironment maps a name to an Environment. An empty name is
// Development.
func ParseEnvironment(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "ci":
		return CI, nil
	case "production", "prod":
		return Production, nil
	default:
		return "", fmt.Errorf("unknown environment: %s", name)
	}
}

// UsesSecretsOnly reports whether sensitive values must come from the
// secrets directory rather than the environment.
func (e Environment) UsesSecretsOnly() bool {
	return e == Production
}

// LoadsDotEnv reports whether a .env file is read at startup.
func (e Environment) LoadsDotEnv() bool {
	return e == Development
}
