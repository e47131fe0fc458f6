package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/usernotes/internal/alerting"
	"github.com/temirov/usernotes/internal/credentials"
	"github.com/temirov/usernotes/internal/migrate"
	"github.com/temirov/usernotes/internal/reddit"
	"github.com/temirov/usernotes/internal/utils"
)

const (
	applicationNameConstant                 = "usernotes"
	applicationShortDescriptionConstant     = "Migrate toolbox usernotes into native moderation notes"
	applicationLongDescriptionConstant      = "usernotes reads the toolbox usernotes wiki page of a subreddit and recreates its notes through the moderation notes API."
	versionTemplateConstant                 = "usernotes version: {{.Version}}\n"
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	alertsConfigurationKeyConstant          = "alerts"
	alertsWebhookURLConfigKeyConstant       = alertsConfigurationKeyConstant + ".webhook_url"
	alertsLevelConfigKeyConstant            = alertsConfigurationKeyConstant + ".level"
	alertsTimeoutConfigKeyConstant          = alertsConfigurationKeyConstant + ".timeout"
	platformConfigurationKeyConstant        = "platform"
	platformAPIBaseURLConfigKeyConstant     = platformConfigurationKeyConstant + ".api_base_url"
	platformTokenURLConfigKeyConstant       = platformConfigurationKeyConstant + ".token_url"
	platformUserAgentConfigKeyConstant      = platformConfigurationKeyConstant + ".user_agent"
	platformTimeoutConfigKeyConstant        = platformConfigurationKeyConstant + ".timeout"
	migrationConfigurationKeyConstant       = "migration"
	migrationWikiPageConfigKeyConstant      = migrationConfigurationKeyConstant + ".wiki_page"
	migrationPollIntervalConfigKeyConstant  = migrationConfigurationKeyConstant + ".poll_interval"
	migrationPacingDelayConfigKeyConstant   = migrationConfigurationKeyConstant + ".pacing_delay"
	migrationRateLimitConfigKeyConstant     = migrationConfigurationKeyConstant + ".rate_limit_backoff"
	migrationTransientConfigKeyConstant     = migrationConfigurationKeyConstant + ".transient_backoff"
	migrationMultiplierConfigKeyConstant    = migrationConfigurationKeyConstant + ".backoff_multiplier"
	migrationBackoffCapConfigKeyConstant    = migrationConfigurationKeyConstant + ".backoff_cap"
	migrationMaxAttemptsConfigKeyConstant   = migrationConfigurationKeyConstant + ".max_attempts"
	migrationLinkedObjectConfigKeyConstant  = migrationConfigurationKeyConstant + ".include_linked_object"
	environmentPrefixConstant               = "USERNOTES"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationAlertsFieldConstant        = "alerts_enabled"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	alertLevelErrorTemplateConstant         = "unable to resolve alert level: %w"
	alertWebhookErrorTemplateConstant       = "unable to configure alert webhook: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	commandFailedMessageConstant            = "usernotes command failed"
	rootCommandInfoMessageConstant          = "usernotes CLI executed"
	rootCommandDebugMessageConstant         = "usernotes CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	userConfigurationDirectoryNameConstant  = "usernotes"
)

// Version is reported by --version and is overridden at build time.
var Version = "dev"

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration   `mapstructure:"common"`
	Alerts    ApplicationAlertsConfiguration   `mapstructure:"alerts"`
	Platform  ApplicationPlatformConfiguration `mapstructure:"platform"`
	Migration migrate.CommandConfiguration     `mapstructure:"migration"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationAlertsConfiguration selects the webhook that receives high severity log entries.
type ApplicationAlertsConfiguration struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Level      string        `mapstructure:"level"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ApplicationPlatformConfiguration holds the platform client endpoints.
type ApplicationPlatformConfiguration struct {
	APIBaseURL string        `mapstructure:"api_base_url"`
	TokenURL   string        `mapstructure:"token_url"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
	environmentLookup      credentials.EnvironmentLookup
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		environmentLookup:      os.LookupEnv,
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetVersionTemplate(versionTemplateConstant)
	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	commandDependencies := migrate.CommandDependencies{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() migrate.CommandConfiguration {
			return application.configuration.Migration
		},
		CredentialsProvider: application.resolveCredentials,
		PlatformProvider:    application.platformClient,
	}

	syncBuilder := migrate.SyncCommandBuilder{CommandDependencies: commandDependencies}
	syncCommand, syncBuildError := syncBuilder.Build()
	if syncBuildError == nil {
		cobraCommand.AddCommand(syncCommand)
	}

	previewBuilder := migrate.PreviewCommandBuilder{CommandDependencies: commandDependencies}
	previewCommand, previewBuildError := previewBuilder.Build()
	if previewBuildError == nil {
		cobraCommand.AddCommand(previewCommand)
	}

	rollbackBuilder := migrate.RollbackCommandBuilder{CommandDependencies: commandDependencies}
	rollbackCommand, rollbackBuildError := rollbackBuilder.Build()
	if rollbackBuildError == nil {
		cobraCommand.AddCommand(rollbackCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy until it finishes or the
// process receives SIGINT or SIGTERM. Failures are logged before they are
// returned so that they reach the alert webhook.
func (application *Application) Execute() error {
	executionContext, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	executionError := application.rootCommand.ExecuteContext(executionContext)
	if executionError != nil {
		application.logger.Error(commandFailedMessageConstant, zap.Error(executionError))
	}
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

// DefaultConfigurationValues lists the fallback values registered before any configuration source is read.
func DefaultConfigurationValues() map[string]any {
	migrationDefaults := migrate.DefaultCommandConfiguration()
	return map[string]any{
		commonLogLevelConfigKeyConstant:        string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:       string(utils.LogFormatStructured),
		alertsWebhookURLConfigKeyConstant:      "",
		alertsLevelConfigKeyConstant:           string(utils.LogLevelError),
		alertsTimeoutConfigKeyConstant:         alerting.DefaultWebhookTimeout,
		platformAPIBaseURLConfigKeyConstant:    reddit.DefaultAPIBaseURL,
		platformTokenURLConfigKeyConstant:      reddit.DefaultTokenURL,
		platformUserAgentConfigKeyConstant:     reddit.DefaultUserAgent,
		platformTimeoutConfigKeyConstant:       reddit.DefaultTimeout,
		migrationWikiPageConfigKeyConstant:     migrationDefaults.WikiPage,
		migrationPollIntervalConfigKeyConstant: migrationDefaults.PollInterval,
		migrationPacingDelayConfigKeyConstant:  migrationDefaults.PacingDelay,
		migrationRateLimitConfigKeyConstant:    migrationDefaults.RateLimitBackoff,
		migrationTransientConfigKeyConstant:    migrationDefaults.TransientBackoff,
		migrationMultiplierConfigKeyConstant:   migrationDefaults.BackoffMultiplier,
		migrationBackoffCapConfigKeyConstant:   migrationDefaults.BackoffCap,
		migrationMaxAttemptsConfigKeyConstant:  migrationDefaults.MaxAttempts,
		migrationLinkedObjectConfigKeyConstant: migrationDefaults.IncludeLinkedObject,
	}
}

func configurationSearchPaths() []string {
	searchPaths := []string{defaultConfigurationSearchPathConstant}
	if userConfigurationDirectory, directoryError := os.UserConfigDir(); directoryError == nil && len(userConfigurationDirectory) > 0 {
		searchPaths = append(searchPaths, filepath.Join(userConfigurationDirectory, userConfigurationDirectoryNameConstant))
	}
	return searchPaths
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, DefaultConfigurationValues(), &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	alertCore, alertError := application.alertCore()
	if alertError != nil {
		return alertError
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(utils.LoggerOptions{
		Level:           utils.LogLevel(application.configuration.Common.LogLevel),
		Format:          utils.LogFormat(application.configuration.Common.LogFormat),
		AdditionalCores: []zapcore.Core{alertCore},
	})
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.Bool(configurationAlertsFieldConstant, alertCore != nil),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithEnvironmentPrefix(updatedContext, environmentPrefixConstant)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

// alertCore returns nil when no webhook is configured.
func (application *Application) alertCore() (zapcore.Core, error) {
	webhookURL := strings.TrimSpace(application.configuration.Alerts.WebhookURL)
	if len(webhookURL) == 0 {
		return nil, nil
	}

	alertLevel, levelError := utils.ZapLevel(utils.LogLevel(strings.ToLower(strings.TrimSpace(application.configuration.Alerts.Level))))
	if levelError != nil {
		return nil, fmt.Errorf(alertLevelErrorTemplateConstant, levelError)
	}

	webhookClient, webhookError := alerting.NewWebhookClient(webhookURL, application.configuration.Alerts.Timeout)
	if webhookError != nil {
		return nil, fmt.Errorf(alertWebhookErrorTemplateConstant, webhookError)
	}

	return alerting.NewCore(webhookClient, alertLevel), nil
}

func (application *Application) resolveCredentials() (credentials.Credentials, error) {
	return credentials.NewResolver(application.environmentLookup, environmentPrefixConstant).Resolve()
}

func (application *Application) platformClient(logger *zap.Logger, appCredentials credentials.Credentials) (migrate.Platform, error) {
	platformConfiguration := application.configuration.Platform
	client, clientError := reddit.NewClient(logger, appCredentials, reddit.ClientConfiguration{
		APIBaseURL: platformConfiguration.APIBaseURL,
		TokenURL:   platformConfiguration.TokenURL,
		UserAgent:  platformConfiguration.UserAgent,
		Timeout:    platformConfiguration.Timeout,
	})
	if clientError != nil {
		return nil, clientError
	}
	return client, nil
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	if len(arguments) == 0 {
		return command.Help()
	}

	return nil
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
