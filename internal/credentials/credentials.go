package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variable names holding the OAuth application credentials and target community.
const (
	EnvClientID     = "client_id"
	EnvClientSecret = "client_secret"
	EnvRefreshToken = "refresh_token"
	EnvSubreddit    = "subreddit"

	prefixedEnvironmentTemplateConstant    = "%s_%s"
	missingCredentialMessageConstant       = "credential not configured"
	missingCredentialErrorTemplateConstant = "%s: environment variable %s is not set"
	environmentLookupNilMessageConstant    = "environment lookup function not configured"
)

var (
	// ErrMissingCredential is wrapped by MissingCredentialError.
	ErrMissingCredential = errors.New(missingCredentialMessageConstant)

	// ErrEnvironmentLookupNotConfigured indicates a nil EnvironmentLookup.
	ErrEnvironmentLookupNotConfigured = errors.New(environmentLookupNilMessageConstant)
)

// MissingCredentialError names the environment variable that was absent or blank.
type MissingCredentialError struct {
	VariableName string
}

// Error describes the missing credential.
func (credentialError MissingCredentialError) Error() string {
	return fmt.Sprintf(missingCredentialErrorTemplateConstant, missingCredentialMessageConstant, credentialError.VariableName)
}

// Unwrap exposes ErrMissingCredential.
func (credentialError MissingCredentialError) Unwrap() error {
	return ErrMissingCredential
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// Credentials carries the OAuth application credentials and the community to migrate.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Subreddit    string
}

// Resolver reads Credentials from the environment. Each value is looked up under its
// bare name first and then under the optional prefix (for example USERNOTES_CLIENT_ID).
type Resolver struct {
	environmentLookup EnvironmentLookup
	environmentPrefix string
}

// NewResolver creates a Resolver; a nil lookup falls back to os.LookupEnv.
func NewResolver(environmentLookup EnvironmentLookup, environmentPrefix string) *Resolver {
	resolvedLookup := environmentLookup
	if resolvedLookup == nil {
		resolvedLookup = os.LookupEnv
	}
	return &Resolver{
		environmentLookup: resolvedLookup,
		environmentPrefix: strings.TrimSpace(environmentPrefix),
	}
}

// Resolve returns the complete credential set or the errors for every missing value.
func (resolver *Resolver) Resolve() (Credentials, error) {
	if resolver == nil || resolver.environmentLookup == nil {
		return Credentials{}, ErrEnvironmentLookupNotConfigured
	}

	var missingErrors []error
	lookupRequired := func(variableName string) string {
		value, found := resolver.lookup(variableName)
		if !found {
			missingErrors = append(missingErrors, MissingCredentialError{VariableName: variableName})
		}
		return value
	}

	resolved := Credentials{
		ClientID:     lookupRequired(EnvClientID),
		ClientSecret: lookupRequired(EnvClientSecret),
		RefreshToken: lookupRequired(EnvRefreshToken),
		Subreddit:    lookupRequired(EnvSubreddit),
	}

	if len(missingErrors) > 0 {
		return Credentials{}, errors.Join(missingErrors...)
	}

	return resolved, nil
}

func (resolver *Resolver) lookup(variableName string) (string, bool) {
	candidateNames := []string{variableName}
	if len(resolver.environmentPrefix) > 0 {
		candidateNames = append(candidateNames, fmt.Sprintf(prefixedEnvironmentTemplateConstant, resolver.environmentPrefix, strings.ToUpper(variableName)))
	}

	for _, candidateName := range candidateNames {
		value, exists := resolver.environmentLookup(candidateName)
		if !exists {
			continue
		}
		trimmedValue := strings.TrimSpace(value)
		if len(trimmedValue) == 0 {
			continue
		}
		return trimmedValue, true
	}

	return "", false
}
