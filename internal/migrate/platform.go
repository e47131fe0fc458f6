package migrate

import (
	"context"
	"time"

	"github.com/temirov/usernotes/internal/reddit"
)

// Platform is the part of the platform API used by the migration.
type Platform interface {
	WikiPageContent(executionContext context.Context, subreddit string, pageName string) (string, error)
	CurrentUser(executionContext context.Context) (string, error)
	CreateNote(executionContext context.Context, noteRequest reddit.CreateNoteRequest) error
	ListUserNotes(executionContext context.Context, subreddit string, user string) ([]reddit.ModNote, error)
	DeleteNote(executionContext context.Context, subreddit string, user string, noteIdentifier string) error
}

// Clock supplies the current time and cancellable waits.
type Clock interface {
	Now() time.Time
	Sleep(executionContext context.Context, duration time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for duration or until the context is done, whichever comes first.
func (SystemClock) Sleep(executionContext context.Context, duration time.Duration) error {
	if duration <= 0 {
		return executionContext.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}
