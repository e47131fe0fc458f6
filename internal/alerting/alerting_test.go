package alerting_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/usernotes/internal/alerting"
)

type recordingPoster struct {
	mutex    sync.Mutex
	messages []string
	err      error
}

func (poster *recordingPoster) Post(_ context.Context, text string) error {
	poster.mutex.Lock()
	defer poster.mutex.Unlock()
	poster.messages = append(poster.messages, text)
	return poster.err
}

func (poster *recordingPoster) recorded() []string {
	poster.mutex.Lock()
	defer poster.mutex.Unlock()
	return append([]string(nil), poster.messages...)
}

func TestCorePostsEntriesAtOrAboveLevel(testInstance *testing.T) {
	poster := &recordingPoster{}
	logger := zap.New(alerting.NewCore(poster, zapcore.ErrorLevel)).With(zap.String("subreddit", "fashionreps"))

	logger.Info("Upload pass complete")
	logger.Warn("Note dropped")
	logger.Error("Migration aborted", zap.String("user", "alice"))

	messages := poster.recorded()
	require.Len(testInstance, messages, 1)
	require.Contains(testInstance, messages[0], "ERROR")
	require.Contains(testInstance, messages[0], "Migration aborted")
	require.Contains(testInstance, messages[0], `"subreddit": "fashionreps"`)
	require.Contains(testInstance, messages[0], `"user": "alice"`)
}

func TestNewCoreWithoutPosterIsDisabled(testInstance *testing.T) {
	core := alerting.NewCore(nil, zapcore.DebugLevel)
	require.False(testInstance, core.Enabled(zapcore.FatalLevel))
}

func TestCoreReportsDeliveryFailure(testInstance *testing.T) {
	deliveryError := errors.New("webhook unavailable")
	core := alerting.NewCore(&recordingPoster{err: deliveryError}, zapcore.ErrorLevel)

	writeError := core.Write(zapcore.Entry{Level: zapcore.ErrorLevel, Message: "boom"}, nil)
	require.ErrorIs(testInstance, writeError, deliveryError)
}

func TestWebhookClientPost(testInstance *testing.T) {
	var (
		mutex            sync.Mutex
		receivedPayloads []map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		payload := map[string]string{}
		decodeError := json.NewDecoder(request.Body).Decode(&payload)
		if decodeError != nil || request.Header.Get("Content-Type") != "application/json" {
			responseWriter.WriteHeader(http.StatusBadRequest)
			return
		}
		mutex.Lock()
		receivedPayloads = append(receivedPayloads, payload)
		mutex.Unlock()
		_, _ = responseWriter.Write([]byte("ok"))
	}))
	testInstance.Cleanup(server.Close)

	client, creationError := alerting.NewWebhookClient(server.URL, 0)
	require.NoError(testInstance, creationError)
	require.NoError(testInstance, client.Post(context.Background(), "ERROR Migration aborted"))

	mutex.Lock()
	defer mutex.Unlock()
	require.Equal(testInstance, []map[string]string{{"text": "ERROR Migration aborted"}}, receivedPayloads)
}

func TestWebhookClientFailures(testInstance *testing.T) {
	testInstance.Run("missing_url", func(testInstance *testing.T) {
		client, creationError := alerting.NewWebhookClient("  ", 0)
		require.ErrorIs(testInstance, creationError, alerting.ErrWebhookURLRequired)
		require.Nil(testInstance, client)
	})

	testInstance.Run("rejected_status", func(testInstance *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			responseWriter.WriteHeader(http.StatusForbidden)
			_, _ = responseWriter.Write([]byte("invalid_token"))
		}))
		testInstance.Cleanup(server.Close)

		client, creationError := alerting.NewWebhookClient(server.URL, 0)
		require.NoError(testInstance, creationError)

		postError := client.Post(context.Background(), "text")
		var statusError alerting.WebhookStatusError
		require.True(testInstance, errors.As(postError, &statusError))
		require.Equal(testInstance, http.StatusForbidden, statusError.StatusCode)
		require.Equal(testInstance, "invalid_token", statusError.Body)
	})
}
