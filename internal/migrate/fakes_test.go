package migrate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/usernotes/internal/reddit"
	"github.com/temirov/usernotes/internal/usernotes"
)

const (
	testSubredditConstant       = "fashionreps"
	testModeratorConstant       = "modbot"
	testSubtestTemplateConstant = "%d_%s"
)

var testStartTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mutex           sync.Mutex
	now             time.Time
	sleeps          []time.Duration
	cancelAfter     int
	cancelExecution context.CancelFunc
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testStartTime}
}

func (clock *fakeClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *fakeClock) Sleep(executionContext context.Context, duration time.Duration) error {
	clock.mutex.Lock()
	clock.sleeps = append(clock.sleeps, duration)
	clock.now = clock.now.Add(duration)
	shouldCancel := clock.cancelExecution != nil && clock.cancelAfter > 0 && len(clock.sleeps) >= clock.cancelAfter
	clock.mutex.Unlock()

	if shouldCancel {
		clock.cancelExecution()
	}
	return executionContext.Err()
}

func (clock *fakeClock) recordedSleeps() []time.Duration {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return append([]time.Duration(nil), clock.sleeps...)
}

type fakePlatform struct {
	wikiContent      string
	wikiError        error
	requestedPages   []string
	currentUser      string
	currentUserError error
	createErrors     map[string][]error
	createAttempts   []string
	createdRequests  []reddit.CreateNoteRequest
	listedNotes      map[string][]reddit.ModNote
	listErrors       map[string][]error
	deleteErrors     map[string]error
	deletedNotes     []string
}

func (platform *fakePlatform) WikiPageContent(_ context.Context, subreddit string, pageName string) (string, error) {
	platform.requestedPages = append(platform.requestedPages, subreddit+"/"+pageName)
	if platform.wikiError != nil {
		return "", platform.wikiError
	}
	return platform.wikiContent, nil
}

func (platform *fakePlatform) CurrentUser(context.Context) (string, error) {
	if platform.currentUserError != nil {
		return "", platform.currentUserError
	}
	return platform.currentUser, nil
}

func (platform *fakePlatform) CreateNote(_ context.Context, noteRequest reddit.CreateNoteRequest) error {
	platform.createAttempts = append(platform.createAttempts, noteRequest.User)
	if queuedErrors := platform.createErrors[noteRequest.User]; len(queuedErrors) > 0 {
		platform.createErrors[noteRequest.User] = queuedErrors[1:]
		if queuedErrors[0] != nil {
			return queuedErrors[0]
		}
	}
	platform.createdRequests = append(platform.createdRequests, noteRequest)
	return nil
}

func (platform *fakePlatform) ListUserNotes(_ context.Context, subreddit string, user string) ([]reddit.ModNote, error) {
	if queuedErrors := platform.listErrors[user]; len(queuedErrors) > 0 {
		platform.listErrors[user] = queuedErrors[1:]
		if queuedErrors[0] != nil {
			return nil, queuedErrors[0]
		}
	}
	var remaining []reddit.ModNote
	for _, note := range platform.listedNotes[user] {
		if note.Subreddit == subreddit {
			remaining = append(remaining, note)
		}
	}
	return remaining, nil
}

func (platform *fakePlatform) DeleteNote(_ context.Context, _ string, user string, noteIdentifier string) error {
	if deleteError := platform.deleteErrors[noteIdentifier]; deleteError != nil {
		return deleteError
	}
	platform.deletedNotes = append(platform.deletedNotes, noteIdentifier)
	kept := platform.listedNotes[user][:0]
	for _, note := range platform.listedNotes[user] {
		if note.ID != noteIdentifier {
			kept = append(kept, note)
		}
	}
	platform.listedNotes[user] = kept
	return nil
}

func apiError(kind reddit.ErrorKind, operation reddit.OperationName, statusCode int) error {
	return reddit.APIError{Operation: operation, StatusCode: statusCode, Kind: kind, Message: string(kind)}
}

func warningIndex(index int) *int {
	return &index
}

func moderatorIndex(index int) *int {
	return &index
}

func legacyDocument() usernotes.LegacyDocument {
	return usernotes.LegacyDocument{
		Version: 6,
		Constants: usernotes.Constants{
			Users:    []string{"modA", "modB"},
			Warnings: []string{"spamwatch", "gooduser", "ban", "none"},
		},
		Users: map[string]usernotes.LegacyUserNotes{
			"bob": {Notes: []usernotes.LegacyNote{
				{ModeratorIndex: moderatorIndex(1), TimestampEpoch: 1709294400, Text: "helpful", WarningIndex: warningIndex(1), LinkSpec: "l,abc123"},
			}},
			"alice": {Notes: []usernotes.LegacyNote{
				{ModeratorIndex: moderatorIndex(0), TimestampEpoch: 1000, Text: "old", WarningIndex: warningIndex(0), LinkSpec: "l"},
				{ModeratorIndex: moderatorIndex(0), TimestampEpoch: 1709298000, Text: "spamming", WarningIndex: warningIndex(0), LinkSpec: "l,abc,def456"},
				{ModeratorIndex: moderatorIndex(1), TimestampEpoch: 1709301600, Text: "unlabelled", WarningIndex: warningIndex(3), LinkSpec: "l"},
			}},
		},
	}
}

func encodedLegacyDocument(testInstance *testing.T) string {
	testInstance.Helper()
	pageContent, encodeError := usernotes.EncodeDocument(legacyDocument())
	require.NoError(testInstance, encodeError)
	return pageContent
}

func label(value usernotes.Label) *usernotes.Label {
	return &value
}
