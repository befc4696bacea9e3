// Package kount integrates with the Kount 360 Commerce v2 order risk API: it obtains bearer
// tokens, maps orders onto the provider schema, submits them and normalises the verdict.
package kount

import (
	"fmt"
	"strings"
)

// Environment identifies a provider deployment target.
type Environment string

const (
	// EnvironmentSandbox is the provider test deployment.
	EnvironmentSandbox Environment = "sandbox"
	// EnvironmentProduction is the live deployment.
	EnvironmentProduction Environment = "production"
)

// Endpoints holds the URLs used for one environment.
type Endpoints struct {
	TokenURL   string
	APIBaseURL string
}

var defaultEndpoints = map[Environment]Endpoints{
	EnvironmentSandbox: {
		TokenURL:   "https://login.kount.com/oauth2/ausdppkujzCPQuIrY357/v1/token",
		APIBaseURL: "https://api-sandbox.kount.com/commerce/v2",
	},
	EnvironmentProduction: {
		TokenURL:   "https://login.kount.com/oauth2/ausdppksgrbyM0abp357/v1/token",
		APIBaseURL: "https://api.kount.com/commerce/v2",
	},
}

// ParseEnvironment normalises an environment flag. Empty input selects the sandbox.
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sandbox":
		return EnvironmentSandbox, nil
	case "production":
		return EnvironmentProduction, nil
	default:
		return "", fmt.Errorf("kount: unknown environment %q", value)
	}
}

// DefaultEndpoints returns the published endpoints for env.
func DefaultEndpoints(env Environment) Endpoints {
	if ep, ok := defaultEndpoints[env]; ok {
		return ep
	}
	return defaultEndpoints[EnvironmentSandbox]
}

// ResolveEndpoints applies non-empty overrides on top of the defaults for env.
func ResolveEndpoints(env Environment, tokenURL, apiBaseURL string) Endpoints {
	ep := DefaultEndpoints(env)
	if v := strings.TrimSpace(tokenURL); v != "" {
		ep.TokenURL = v
	}
	if v := strings.TrimSpace(apiBaseURL); v != "" {
		ep.APIBaseURL = strings.TrimRight(v, "/")
	}
	return ep
}
