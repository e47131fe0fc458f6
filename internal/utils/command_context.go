package utils

import "context"

type commandContextKey string

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	environmentPrefixContextKeyConstant     = commandContextKey("environmentPrefix")
)

// CommandContextAccessor stores and retrieves values shared between the root command
// and its subcommands through the cobra execution context.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath records the configuration file that was loaded.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	return withStringValue(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// ConfigurationFilePath returns the configuration file recorded by WithConfigurationFilePath.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return stringValue(executionContext, configurationFilePathContextKeyConstant)
}

// WithEnvironmentPrefix records the prefix used for environment overrides and credentials.
func (accessor CommandContextAccessor) WithEnvironmentPrefix(parentContext context.Context, environmentPrefix string) context.Context {
	return withStringValue(parentContext, environmentPrefixContextKeyConstant, environmentPrefix)
}

// EnvironmentPrefix returns the prefix recorded by WithEnvironmentPrefix.
func (accessor CommandContextAccessor) EnvironmentPrefix(executionContext context.Context) (string, bool) {
	return stringValue(executionContext, environmentPrefixContextKeyConstant)
}

func withStringValue(parentContext context.Context, key commandContextKey, value string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, key, value)
}

func stringValue(executionContext context.Context, key commandContextKey) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, available := executionContext.Value(key).(string)
	return value, available
}
