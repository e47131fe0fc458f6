package migrate

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/temirov/usernotes/internal/credentials"
	"github.com/temirov/usernotes/internal/usernotes"
	"github.com/temirov/usernotes/internal/utils"
)

const (
	syncCommandUseConstant                    = "sync"
	syncCommandShortDescriptionConstant       = "Continuously migrate new usernotes into moderation notes"
	syncCommandLongDescriptionConstant        = "sync polls the usernotes wiki page, uploads every note recorded since the watermark as a moderation note, then advances the watermark and waits for the poll interval."
	previewCommandUseConstant                 = "preview"
	previewCommandShortDescriptionConstant    = "Print translated usernotes without uploading them"
	previewCommandLongDescriptionConstant     = "preview fetches the usernotes wiki page once and prints the moderation notes that sync would create, as YAML."
	rollbackCommandUseConstant                = "rollback"
	rollbackCommandShortDescriptionConstant   = "Delete moderation notes created by the current moderator"
	rollbackCommandLongDescriptionConstant    = "rollback fetches the usernotes recorded since --since and deletes every moderation note of type NOTE that the authenticated moderator wrote for those users."
	sinceFlagNameConstant                     = "since"
	sinceFlagUsageConstant                    = "Only migrate notes recorded at or after this time (RFC3339, epoch seconds or \"now\")"
	sinceNowValueConstant                     = "now"
	sinceBeginningValueConstant               = "0"
	onceFlagNameConstant                      = "once"
	onceFlagUsageConstant                     = "Run a single fetch and upload cycle and exit"
	intervalFlagNameConstant                  = "interval"
	intervalFlagUsageConstant                 = "Time between sync cycles (defaults to migration.poll_interval)"
	includeLinkedFlagNameConstant             = "include-linked-objects"
	includeLinkedFlagUsageConstant            = "Attach the linked post or comment to each note"
	confirmFlagNameConstant                   = "yes"
	confirmFlagShorthandConstant              = "y"
	confirmFlagUsageConstant                  = "Confirm deletion of moderation notes"
	sinceInvalidMessageTemplateConstant       = "unrecognized time %q"
	sinceOutOfRangeMessageTemplateConstant    = "epoch seconds %q out of range"
	confirmationRequiredMessageConstant       = "rollback deletes moderation notes; pass --yes to confirm"
	credentialsProviderMissingMessageConstant = "credentials provider not configured"
	platformProviderMissingMessageConstant    = "platform provider not configured"
	credentialsErrorTemplateConstant          = "unable to resolve credentials: %w"
	platformErrorTemplateConstant             = "unable to construct platform client: %w"
	previewEncodingErrorTemplateConstant      = "unable to render preview: %w"
	rollbackSummaryTemplateConstant           = "deleted %d notes for %d users (%d dropped, %d abandoned)\n"
	syncSummaryTemplateConstant               = "fetched %d notes, created %d (%d dropped, %d abandoned)\n"
	yamlIndentConstant                        = 2
	logMessageSyncStartingConstant            = "Sync starting"
	logFieldConfigurationFileConstant         = "configuration_file"
	logFieldSinceConstant                     = "since"
)

var (
	// ErrCredentialsProviderMissing indicates a command built without a CredentialsProvider.
	ErrCredentialsProviderMissing = errors.New(credentialsProviderMissingMessageConstant)

	// ErrPlatformProviderMissing indicates a command built without a PlatformProvider.
	ErrPlatformProviderMissing = errors.New(platformProviderMissingMessageConstant)

	// ErrConfirmationRequired is returned by rollback when --yes is absent.
	ErrConfirmationRequired = errors.New(confirmationRequiredMessageConstant)
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CredentialsProvider supplies the OAuth credentials and target community.
type CredentialsProvider func() (credentials.Credentials, error)

// PlatformProvider constructs the platform client for the resolved credentials.
type PlatformProvider func(logger *zap.Logger, appCredentials credentials.Credentials) (Platform, error)

// CommandDependencies are shared by the sync, preview and rollback builders.
type CommandDependencies struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	CredentialsProvider   CredentialsProvider
	PlatformProvider      PlatformProvider
	Clock                 Clock
}

// SyncCommandBuilder assembles the sync command.
type SyncCommandBuilder struct {
	CommandDependencies
}

// PreviewCommandBuilder assembles the preview command.
type PreviewCommandBuilder struct {
	CommandDependencies
}

// RollbackCommandBuilder assembles the rollback command.
type RollbackCommandBuilder struct {
	CommandDependencies
}

// Build constructs the sync command.
func (builder *SyncCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           syncCommandUseConstant,
		Short:         syncCommandShortDescriptionConstant,
		Long:          syncCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().String(sinceFlagNameConstant, sinceNowValueConstant, sinceFlagUsageConstant)
	command.Flags().Bool(onceFlagNameConstant, false, onceFlagUsageConstant)
	command.Flags().Duration(intervalFlagNameConstant, 0, intervalFlagUsageConstant)
	command.Flags().Bool(includeLinkedFlagNameConstant, false, includeLinkedFlagUsageConstant)

	return command, nil
}

func (builder *SyncCommandBuilder) run(command *cobra.Command, _ []string) error {
	configuration := builder.resolveConfiguration()
	clock := builder.resolveClock()

	sinceValue, _ := command.Flags().GetString(sinceFlagNameConstant)
	watermark, sinceError := ParseSince(sinceValue, clock.Now())
	if sinceError != nil {
		return sinceError
	}
	runOnce, _ := command.Flags().GetBool(onceFlagNameConstant)
	interval := configuration.PollInterval
	if command.Flags().Changed(intervalFlagNameConstant) {
		interval, _ = command.Flags().GetDuration(intervalFlagNameConstant)
	}

	logger := builder.resolveLogger()
	service, serviceError := builder.buildService(logger, configuration, builder.includeLinkedObject(command, configuration))
	if serviceError != nil {
		return serviceError
	}

	poller, pollerError := NewPoller(PollerDependencies{
		Logger:   logger,
		Migrator: service,
		Clock:    clock,
		Interval: interval,
		Session:  &Session{Watermark: watermark},
	})
	if pollerError != nil {
		return pollerError
	}

	startFields := []zap.Field{zap.Time(logFieldSinceConstant, watermark), zap.Duration(logFieldIntervalConstant, interval)}
	if configurationFile, available := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context()); available && len(configurationFile) > 0 {
		startFields = append(startFields, zap.String(logFieldConfigurationFileConstant, configurationFile))
	}
	logger.Info(logMessageSyncStartingConstant, startFields...)

	if !runOnce {
		return poller.Run(command.Context())
	}

	cycleResult, cycleError := poller.RunOnce(command.Context())
	if cycleError != nil {
		return cycleError
	}
	_, writeError := fmt.Fprintf(utils.NewFlushingWriter(command.OutOrStdout()), syncSummaryTemplateConstant, cycleResult.Fetched, cycleResult.Upload.Created, cycleResult.Upload.Dropped, cycleResult.Upload.Abandoned)
	return writeError
}

// Build constructs the preview command.
func (builder *PreviewCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           previewCommandUseConstant,
		Short:         previewCommandShortDescriptionConstant,
		Long:          previewCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().String(sinceFlagNameConstant, sinceBeginningValueConstant, sinceFlagUsageConstant)
	command.Flags().Bool(includeLinkedFlagNameConstant, false, includeLinkedFlagUsageConstant)

	return command, nil
}

func (builder *PreviewCommandBuilder) run(command *cobra.Command, _ []string) error {
	configuration := builder.resolveConfiguration()
	notes, fetchError := builder.fetch(command, configuration)
	if fetchError != nil {
		return fetchError
	}
	return writePreview(utils.NewFlushingWriter(command.OutOrStdout()), notes)
}

// Build constructs the rollback command.
func (builder *RollbackCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           rollbackCommandUseConstant,
		Short:         rollbackCommandShortDescriptionConstant,
		Long:          rollbackCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().String(sinceFlagNameConstant, sinceBeginningValueConstant, sinceFlagUsageConstant)
	command.Flags().BoolP(confirmFlagNameConstant, confirmFlagShorthandConstant, false, confirmFlagUsageConstant)

	return command, nil
}

func (builder *RollbackCommandBuilder) run(command *cobra.Command, _ []string) error {
	confirmed, _ := command.Flags().GetBool(confirmFlagNameConstant)
	if !confirmed {
		return ErrConfirmationRequired
	}

	configuration := builder.resolveConfiguration()
	logger := builder.resolveLogger()
	service, serviceError := builder.buildService(logger, configuration, false)
	if serviceError != nil {
		return serviceError
	}

	sinceValue, _ := command.Flags().GetString(sinceFlagNameConstant)
	watermark, sinceError := ParseSince(sinceValue, builder.resolveClock().Now())
	if sinceError != nil {
		return sinceError
	}

	notes, fetchError := service.FetchLegacyNotes(command.Context(), watermark.Unix())
	if fetchError != nil {
		return fetchError
	}

	deleteResult, deleteError := service.DeleteNotes(command.Context(), notes)
	if deleteError != nil {
		return deleteError
	}

	_, writeError := fmt.Fprintf(utils.NewFlushingWriter(command.OutOrStdout()), rollbackSummaryTemplateConstant, deleteResult.DeletedNotes, deleteResult.CompletedUsers, deleteResult.DroppedUsers, deleteResult.AbandonedUsers)
	return writeError
}

// ParseSince interprets a --since value as RFC3339, epoch seconds or "now".
func ParseSince(value string, now time.Time) (time.Time, error) {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 || strings.EqualFold(trimmedValue, sinceNowValueConstant) {
		return now, nil
	}
	if epochSeconds, parseError := strconv.ParseFloat(trimmedValue, 64); parseError == nil {
		if !usernotes.EpochInRange(epochSeconds) {
			return time.Time{}, InvalidInputError{FieldName: sinceFlagNameConstant, Message: fmt.Sprintf(sinceOutOfRangeMessageTemplateConstant, trimmedValue)}
		}
		return time.Unix(int64(epochSeconds), 0).UTC(), nil
	}
	if timestamp, parseError := time.Parse(time.RFC3339, trimmedValue); parseError == nil {
		return timestamp, nil
	}
	return time.Time{}, InvalidInputError{FieldName: sinceFlagNameConstant, Message: fmt.Sprintf(sinceInvalidMessageTemplateConstant, trimmedValue)}
}

func writePreview(writer io.Writer, notes []usernotes.Note) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(notes); encodeError != nil {
		return fmt.Errorf(previewEncodingErrorTemplateConstant, encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return fmt.Errorf(previewEncodingErrorTemplateConstant, closeError)
	}
	return nil
}

func (builder *PreviewCommandBuilder) fetch(command *cobra.Command, configuration CommandConfiguration) ([]usernotes.Note, error) {
	logger := builder.resolveLogger()
	service, serviceError := builder.buildService(logger, configuration, builder.includeLinkedObject(command, configuration))
	if serviceError != nil {
		return nil, serviceError
	}

	sinceValue, _ := command.Flags().GetString(sinceFlagNameConstant)
	watermark, sinceError := ParseSince(sinceValue, builder.resolveClock().Now())
	if sinceError != nil {
		return nil, sinceError
	}

	return service.FetchLegacyNotes(command.Context(), watermark.Unix())
}

func (dependencies CommandDependencies) buildService(logger *zap.Logger, configuration CommandConfiguration, includeLinkedObject bool) (*Service, error) {
	if dependencies.CredentialsProvider == nil {
		return nil, ErrCredentialsProviderMissing
	}
	if dependencies.PlatformProvider == nil {
		return nil, ErrPlatformProviderMissing
	}

	appCredentials, credentialsError := dependencies.CredentialsProvider()
	if credentialsError != nil {
		return nil, fmt.Errorf(credentialsErrorTemplateConstant, credentialsError)
	}

	platform, platformError := dependencies.PlatformProvider(logger, appCredentials)
	if platformError != nil {
		return nil, fmt.Errorf(platformErrorTemplateConstant, platformError)
	}

	return NewService(ServiceDependencies{
		Logger:              logger,
		Platform:            platform,
		Clock:               dependencies.resolveClock(),
		Subreddit:           appCredentials.Subreddit,
		WikiPage:            configuration.WikiPage,
		RetryPolicy:         configuration.RetryPolicy(),
		IncludeLinkedObject: includeLinkedObject,
	})
}

func (dependencies CommandDependencies) includeLinkedObject(command *cobra.Command, configuration CommandConfiguration) bool {
	if command != nil && command.Flags().Changed(includeLinkedFlagNameConstant) {
		flagValue, _ := command.Flags().GetBool(includeLinkedFlagNameConstant)
		return flagValue
	}
	return configuration.IncludeLinkedObject
}

func (dependencies CommandDependencies) resolveLogger() *zap.Logger {
	if dependencies.LoggerProvider != nil {
		if logger := dependencies.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (dependencies CommandDependencies) resolveClock() Clock {
	if dependencies.Clock != nil {
		return dependencies.Clock
	}
	return SystemClock{}
}

func (dependencies CommandDependencies) resolveConfiguration() CommandConfiguration {
	if dependencies.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return dependencies.ConfigurationProvider().Sanitize()
}
