package migrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/usernotes/internal/reddit"
	"github.com/temirov/usernotes/internal/usernotes"
)

const (
	// DefaultWikiPage is the wiki page holding the toolbox usernotes document.
	DefaultWikiPage = "usernotes"

	operationUploadConstant             = "upload"
	operationDeleteConstant             = "delete"
	subredditFieldNameConstant          = "subreddit"
	requiredValueMessageConstant        = "value required"
	invalidInputErrorTemplateConstant   = "%s: %s"
	operationErrorTemplateConstant      = "%s: %v"
	platformMissingMessageConstant      = "platform not configured"
	wikiPageFetchFailedMessageConstant  = "unable to read usernotes wiki page"
	documentDecodeFailedMessageConstant = "unable to decode usernotes document"
	translationFailedMessageConstant    = "unable to translate usernotes"
	currentUserFailedMessageConstant    = "unable to resolve current moderator"
	logMessageNotesFetchedConstant      = "Legacy notes fetched"
	logMessageLinkSpecSkippedConstant   = "Legacy note link spec not recognized"
	logMessageUploadCompleteConstant    = "Notes uploaded"
	logMessageUserNotesDeletedConstant  = "Moderator notes deleted for user"
	logMessageDeleteCompleteConstant    = "Notes deleted"
	logFieldOperationConstant           = "operation"
	logFieldSubredditConstant           = "subreddit"
	logFieldUserConstant                = "user"
	logFieldLabelConstant               = "label"
	logFieldAfterEpochConstant          = "after_epoch"
	logFieldNoteCountConstant           = "notes"
	logFieldLinkSpecConstant            = "link_spec"
	logFieldCreatedConstant             = "created"
	logFieldDroppedConstant             = "dropped"
	logFieldAbandonedConstant           = "abandoned"
	logFieldDeletedNotesConstant        = "deleted_notes"
	logFieldCompletedUsersConstant      = "completed_users"
	logFieldModeratorConstant           = "moderator"
)

// ErrPlatformNotConfigured indicates a Service built without a Platform.
var ErrPlatformNotConfigured = errors.New(platformMissingMessageConstant)

// InvalidInputError describes service configuration validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps a failed service step.
type OperationError struct {
	Operation string
	Cause     error
}

// Error describes the failed step.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying failure.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ServiceDependencies describes the collaborators and settings of a Service.
type ServiceDependencies struct {
	Logger              *zap.Logger
	Platform            Platform
	Clock               Clock
	Subreddit           string
	WikiPage            string
	RetryPolicy         RetryPolicy
	IncludeLinkedObject bool
}

// UploadResult counts the outcome of UploadNotes.
type UploadResult struct {
	Created   int
	Dropped   int
	Abandoned int
}

// DeleteResult counts the outcome of DeleteNotes.
type DeleteResult struct {
	DeletedNotes   int
	CompletedUsers int
	DroppedUsers   int
	AbandonedUsers int
}

// Service fetches, uploads and deletes moderation notes for one community.
type Service struct {
	logger              *zap.Logger
	platform            Platform
	clock               Clock
	subreddit           string
	wikiPage            string
	retryPolicy         RetryPolicy
	includeLinkedObject bool
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Platform == nil {
		return nil, ErrPlatformNotConfigured
	}
	subreddit := strings.TrimSpace(dependencies.Subreddit)
	if len(subreddit) == 0 {
		return nil, InvalidInputError{FieldName: subredditFieldNameConstant, Message: requiredValueMessageConstant}
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	wikiPage := strings.TrimSpace(dependencies.WikiPage)
	if len(wikiPage) == 0 {
		wikiPage = DefaultWikiPage
	}

	return &Service{
		logger:              logger,
		platform:            dependencies.Platform,
		clock:               clock,
		subreddit:           subreddit,
		wikiPage:            wikiPage,
		retryPolicy:         dependencies.RetryPolicy,
		includeLinkedObject: dependencies.IncludeLinkedObject,
	}, nil
}

// FetchLegacyNotes reads the usernotes wiki page and translates every note recorded
// at or after afterEpoch.
func (service *Service) FetchLegacyNotes(executionContext context.Context, afterEpoch int64) ([]usernotes.Note, error) {
	pageContent, pageError := service.platform.WikiPageContent(executionContext, service.subreddit, service.wikiPage)
	if pageError != nil {
		return nil, wrapOperationError(wikiPageFetchFailedMessageConstant, pageError)
	}

	document, decodeError := usernotes.DecodeDocument(pageContent)
	if decodeError != nil {
		return nil, OperationError{Operation: documentDecodeFailedMessageConstant, Cause: decodeError}
	}

	translation, translationError := usernotes.Translate(document, usernotes.TranslationOptions{
		Community:           service.subreddit,
		AfterEpoch:          afterEpoch,
		IncludeLinkedObject: service.includeLinkedObject,
	})
	if translationError != nil {
		return nil, OperationError{Operation: translationFailedMessageConstant, Cause: translationError}
	}

	for _, linkFailure := range translation.LinkSpecFailures {
		service.logger.Debug(
			logMessageLinkSpecSkippedConstant,
			zap.String(logFieldUserConstant, linkFailure.TargetUser),
			zap.String(logFieldLinkSpecConstant, linkFailure.LinkSpec),
		)
	}

	service.logger.Info(
		logMessageNotesFetchedConstant,
		zap.String(logFieldSubredditConstant, service.subreddit),
		zap.Int64(logFieldAfterEpochConstant, afterEpoch),
		zap.Int(logFieldNoteCountConstant, len(translation.Notes)),
	)

	return translation.Notes, nil
}

// UploadNotes creates every note, pacing writes and retrying throttled or transient
// failures. Notes whose target no longer accepts notes are dropped.
func (service *Service) UploadNotes(executionContext context.Context, notes []usernotes.Note) (UploadResult, error) {
	counts, drainError := drainWorkList(
		executionContext,
		service.logger,
		service.clock,
		service.retryPolicy,
		operationUploadConstant,
		notes,
		describeNote,
		func(attemptContext context.Context, note usernotes.Note) error {
			return service.platform.CreateNote(attemptContext, service.createNoteRequest(note))
		},
	)

	result := UploadResult{Created: counts.Succeeded, Dropped: counts.Dropped, Abandoned: counts.Abandoned}
	if drainError != nil {
		return result, drainError
	}

	service.logger.Info(
		logMessageUploadCompleteConstant,
		zap.Int(logFieldCreatedConstant, result.Created),
		zap.Int(logFieldDroppedConstant, result.Dropped),
		zap.Int(logFieldAbandonedConstant, result.Abandoned),
	)
	return result, nil
}

// DeleteNotes removes the moderation notes of type NOTE written by the current
// moderator for every distinct target user in notes.
func (service *Service) DeleteNotes(executionContext context.Context, notes []usernotes.Note) (DeleteResult, error) {
	moderatorName, moderatorError := service.platform.CurrentUser(executionContext)
	if moderatorError != nil {
		return DeleteResult{}, wrapOperationError(currentUserFailedMessageConstant, moderatorError)
	}

	result := DeleteResult{}
	counts, drainError := drainWorkList(
		executionContext,
		service.logger,
		service.clock,
		service.retryPolicy,
		operationDeleteConstant,
		service.distinctTargets(notes),
		describeTarget,
		func(attemptContext context.Context, target noteTarget) error {
			deletedNotes, deleteError := service.deleteModeratorNotes(attemptContext, target, moderatorName)
			result.DeletedNotes += deletedNotes
			return deleteError
		},
	)

	result.CompletedUsers = counts.Succeeded
	result.DroppedUsers = counts.Dropped
	result.AbandonedUsers = counts.Abandoned
	if drainError != nil {
		return result, drainError
	}

	service.logger.Info(
		logMessageDeleteCompleteConstant,
		zap.String(logFieldModeratorConstant, moderatorName),
		zap.Int(logFieldDeletedNotesConstant, result.DeletedNotes),
		zap.Int(logFieldCompletedUsersConstant, result.CompletedUsers),
		zap.Int(logFieldDroppedConstant, result.DroppedUsers),
		zap.Int(logFieldAbandonedConstant, result.AbandonedUsers),
	)
	return result, nil
}

type noteTarget struct {
	subreddit string
	user      string
}

func (service *Service) distinctTargets(notes []usernotes.Note) []noteTarget {
	seen := make(map[noteTarget]struct{}, len(notes))
	targets := make([]noteTarget, 0, len(notes))
	for _, note := range notes {
		target := noteTarget{subreddit: note.Community, user: note.TargetUser}
		if len(strings.TrimSpace(target.subreddit)) == 0 {
			target.subreddit = service.subreddit
		}
		if _, exists := seen[target]; exists {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	sort.Slice(targets, func(leftIndex int, rightIndex int) bool {
		if targets[leftIndex].subreddit != targets[rightIndex].subreddit {
			return targets[leftIndex].subreddit < targets[rightIndex].subreddit
		}
		return targets[leftIndex].user < targets[rightIndex].user
	})
	return targets
}

func (service *Service) deleteModeratorNotes(executionContext context.Context, target noteTarget, moderatorName string) (int, error) {
	existingNotes, listError := service.platform.ListUserNotes(executionContext, target.subreddit, target.user)
	if listError != nil {
		return 0, listError
	}

	deletedNotes := 0
	for _, existingNote := range existingNotes {
		if existingNote.Type != reddit.NoteTypeNote {
			continue
		}
		if !strings.EqualFold(existingNote.Operator, moderatorName) {
			continue
		}
		if deleteError := service.platform.DeleteNote(executionContext, target.subreddit, target.user, existingNote.ID); deleteError != nil {
			return deletedNotes, deleteError
		}
		deletedNotes++
	}

	service.logger.Debug(
		logMessageUserNotesDeletedConstant,
		zap.String(logFieldSubredditConstant, target.subreddit),
		zap.String(logFieldUserConstant, target.user),
		zap.Int(logFieldDeletedNotesConstant, deletedNotes),
	)
	return deletedNotes, nil
}

func (service *Service) createNoteRequest(note usernotes.Note) reddit.CreateNoteRequest {
	noteRequest := reddit.CreateNoteRequest{
		Subreddit: note.Community,
		User:      note.TargetUser,
		Note:      note.Text,
	}
	if len(strings.TrimSpace(noteRequest.Subreddit)) == 0 {
		noteRequest.Subreddit = service.subreddit
	}
	if note.Label != nil {
		noteRequest.Label = string(*note.Label)
	}
	if note.LinkedThing != nil {
		noteRequest.RedditID = note.LinkedThing.FullName()
	}
	return noteRequest
}

func describeNote(note usernotes.Note) []zap.Field {
	fields := []zap.Field{zap.String(logFieldUserConstant, note.TargetUser)}
	if note.Label != nil {
		fields = append(fields, zap.String(logFieldLabelConstant, string(*note.Label)))
	}
	return fields
}

func describeTarget(target noteTarget) []zap.Field {
	return []zap.Field{zap.String(logFieldSubredditConstant, target.subreddit), zap.String(logFieldUserConstant, target.user)}
}

func wrapOperationError(operation string, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return OperationError{Operation: operation, Cause: cause}
}
