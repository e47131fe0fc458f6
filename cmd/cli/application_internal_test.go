package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/usernotes/internal/credentials"
	"github.com/temirov/usernotes/internal/usernotes"
)

const (
	testSubredditConstant           = "fashionreps"
	testConfigurationFileConstant   = "config.yaml"
	testTokenPathConstant           = "/api/v1/access_token"
	testWikiPathConstant            = "/r/" + testSubredditConstant + "/wiki/usernotes"
	testPlatformConfigTemplate      = "platform:\n  api_base_url: %s\n  token_url: %s\nmigration:\n  pacing_delay: 0s\n"
	testAlertsConfigTemplate        = "alerts:\n  webhook_url: %s\n  level: error\n"
	testSubtestNameTemplateConstant = "%d_%s"
)

type recordingWebhook struct {
	mutex    sync.Mutex
	messages []string
}

func (webhook *recordingWebhook) handle(responseWriter http.ResponseWriter, request *http.Request) {
	payload := struct {
		Text string `json:"text"`
	}{}
	body, _ := io.ReadAll(request.Body)
	_ = json.Unmarshal(body, &payload)
	webhook.mutex.Lock()
	webhook.messages = append(webhook.messages, payload.Text)
	webhook.mutex.Unlock()
	responseWriter.WriteHeader(http.StatusOK)
}

func (webhook *recordingWebhook) recorded() []string {
	webhook.mutex.Lock()
	defer webhook.mutex.Unlock()
	return append([]string(nil), webhook.messages...)
}

func moderatorIndex(index int) *int {
	return &index
}

func isolateUserConfiguration(testInstance *testing.T) {
	testInstance.Helper()
	homeDirectory := testInstance.TempDir()
	testInstance.Setenv("HOME", homeDirectory)
	testInstance.Setenv("XDG_CONFIG_HOME", filepath.Join(homeDirectory, "config"))
}

func writeConfiguration(testInstance *testing.T, contents string) string {
	testInstance.Helper()
	configurationPath := filepath.Join(testInstance.TempDir(), testConfigurationFileConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(contents), 0o600))
	return configurationPath
}

func environmentLookup(values map[string]string) credentials.EnvironmentLookup {
	return func(key string) (string, bool) {
		value, found := values[key]
		return value, found
	}
}

func fullEnvironment() credentials.EnvironmentLookup {
	return environmentLookup(map[string]string{
		"USERNOTES_CLIENT_ID":     "client",
		"USERNOTES_CLIENT_SECRET": "secret",
		"USERNOTES_REFRESH_TOKEN": "refresh",
		"USERNOTES_SUBREDDIT":     testSubredditConstant,
	})
}

func newPlatformServer(testInstance *testing.T) *httptest.Server {
	testInstance.Helper()
	pageContent, encodeError := usernotes.EncodeDocument(usernotes.LegacyDocument{
		Version: 6,
		Constants: usernotes.Constants{
			Users:    []string{"modA"},
			Warnings: []string{"spamwatch"},
		},
		Users: map[string]usernotes.LegacyUserNotes{
			"alice": {Notes: []usernotes.LegacyNote{{ModeratorIndex: moderatorIndex(0), TimestampEpoch: 1000, Text: "spamming", LinkSpec: "l"}}},
		},
	})
	require.NoError(testInstance, encodeError)
	wikiResponse, marshalError := json.Marshal(map[string]any{"kind": "wikipage", "data": map[string]any{"content_md": pageContent}})
	require.NoError(testInstance, marshalError)

	router := http.NewServeMux()
	router.HandleFunc(testTokenPathConstant, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = responseWriter.Write([]byte(`{"access_token":"token","token_type":"bearer","expires_in":3600}`))
	})
	router.HandleFunc(testWikiPathConstant, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = responseWriter.Write(wikiResponse)
	})

	server := httptest.NewServer(router)
	testInstance.Cleanup(server.Close)
	return server
}

func executeApplication(application *Application, arguments ...string) (string, error) {
	outputBuffer := &bytes.Buffer{}
	application.rootCommand.SetOut(outputBuffer)
	application.rootCommand.SetErr(outputBuffer)
	application.rootCommand.SetArgs(arguments)
	executionError := application.Execute()
	return outputBuffer.String(), executionError
}

func TestApplicationVersionFlag(testInstance *testing.T) {
	isolateUserConfiguration(testInstance)
	application := NewApplication()

	output, executionError := executeApplication(application, "--version")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "usernotes version: "+Version+"\n", output)
}

func TestApplicationRegistersMigrationCommands(testInstance *testing.T) {
	isolateUserConfiguration(testInstance)
	application := NewApplication()

	registered := map[string]bool{}
	for _, command := range application.rootCommand.Commands() {
		registered[command.Name()] = true
	}
	for _, expectedName := range []string{"sync", "preview", "rollback"} {
		require.True(testInstance, registered[expectedName], expectedName)
	}
}

func TestApplicationPreviewAgainstPlatform(testInstance *testing.T) {
	isolateUserConfiguration(testInstance)
	server := newPlatformServer(testInstance)
	configurationPath := writeConfiguration(testInstance, fmt.Sprintf(testPlatformConfigTemplate, server.URL, server.URL+testTokenPathConstant))

	application := NewApplication()
	application.environmentLookup = fullEnvironment()

	output, executionError := executeApplication(application, "--config", configurationPath, "--log-level", "error", "preview", "--since", "0")
	require.NoError(testInstance, executionError)

	var previewed []map[string]any
	require.NoError(testInstance, yaml.Unmarshal([]byte(output), &previewed))
	require.Len(testInstance, previewed, 1)
	require.Equal(testInstance, "alice", previewed[0]["user"])
	require.Equal(testInstance, "1970-01-01 | modA | spamming", previewed[0]["note"])
	require.Equal(testInstance, testSubredditConstant, previewed[0]["subreddit"])
}

func TestApplicationInitializeConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name                 string
		configuration        string
		arguments            []string
		environment          map[string]string
		expectedErrorSnippet string
		verify               func(testInstance *testing.T, application *Application)
	}{
		{
			name:          "embedded defaults",
			configuration: "",
			verify: func(testInstance *testing.T, application *Application) {
				require.Equal(testInstance, "info", application.configuration.Common.LogLevel)
				require.Equal(testInstance, "usernotes", application.configuration.Migration.WikiPage)
				require.Equal(testInstance, "https://oauth.reddit.com", application.configuration.Platform.APIBaseURL)
			},
		},
		{
			name:          "environment overrides file",
			configuration: "migration:\n  wiki_page: from_file\n  max_attempts: 3\n",
			environment:   map[string]string{"USERNOTES_MIGRATION_WIKI_PAGE": "from_env"},
			verify: func(testInstance *testing.T, application *Application) {
				require.Equal(testInstance, "from_env", application.configuration.Migration.WikiPage)
				require.Equal(testInstance, 3, application.configuration.Migration.MaxAttempts)
			},
		},
		{
			name:          "flags override log settings",
			configuration: "common:\n  log_level: warn\n",
			arguments:     []string{"--log-level", "debug", "--log-format", "console"},
			verify: func(testInstance *testing.T, application *Application) {
				require.Equal(testInstance, "debug", application.configuration.Common.LogLevel)
				require.Equal(testInstance, "console", application.configuration.Common.LogFormat)
			},
		},
		{
			name:                 "unknown log level",
			configuration:        "common:\n  log_level: verbose\n",
			expectedErrorSnippet: "unable to create logger",
		},
		{
			name:                 "unknown alert level",
			configuration:        "alerts:\n  webhook_url: http://127.0.0.1:1/hook\n  level: loud\n",
			expectedErrorSnippet: "unable to resolve alert level",
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf(testSubtestNameTemplateConstant, testCaseIndex, testCase.name), func(testInstance *testing.T) {
			isolateUserConfiguration(testInstance)
			for key, value := range testCase.environment {
				testInstance.Setenv(key, value)
			}

			application := NewApplication()
			arguments := append([]string(nil), testCase.arguments...)
			if len(testCase.configuration) > 0 {
				arguments = append(arguments, "--config", writeConfiguration(testInstance, testCase.configuration))
			}
			require.NoError(testInstance, application.rootCommand.ParseFlags(arguments))

			initializationError := application.initializeConfiguration(application.rootCommand)
			if len(testCase.expectedErrorSnippet) > 0 {
				require.Error(testInstance, initializationError)
				require.Contains(testInstance, initializationError.Error(), testCase.expectedErrorSnippet)
				return
			}
			require.NoError(testInstance, initializationError)
			testCase.verify(testInstance, application)
		})
	}
}

func TestInitializeConfigurationAttachesCommandContext(testInstance *testing.T) {
	isolateUserConfiguration(testInstance)
	configurationPath := writeConfiguration(testInstance, "common:\n  log_level: error\n")

	application := NewApplication()
	require.NoError(testInstance, application.rootCommand.ParseFlags([]string{"--config", configurationPath}))
	require.NoError(testInstance, application.initializeConfiguration(application.rootCommand))

	configurationFile, configurationFileAvailable := application.commandContextAccessor.ConfigurationFilePath(application.rootCommand.Context())
	require.True(testInstance, configurationFileAvailable)
	require.Equal(testInstance, configurationPath, configurationFile)

	environmentPrefix, environmentPrefixAvailable := application.commandContextAccessor.EnvironmentPrefix(application.rootCommand.Context())
	require.True(testInstance, environmentPrefixAvailable)
	require.Equal(testInstance, environmentPrefixConstant, environmentPrefix)
}

func TestApplicationFailureReachesAlertWebhook(testInstance *testing.T) {
	isolateUserConfiguration(testInstance)
	webhook := &recordingWebhook{}
	webhookServer := httptest.NewServer(http.HandlerFunc(webhook.handle))
	defer webhookServer.Close()

	configurationPath := writeConfiguration(testInstance, fmt.Sprintf(testAlertsConfigTemplate, webhookServer.URL))
	application := NewApplication()
	application.environmentLookup = environmentLookup(map[string]string{})

	_, executionError := executeApplication(application, "--config", configurationPath, "--log-level", "error", "preview")
	var missingCredential credentials.MissingCredentialError
	require.ErrorAs(testInstance, executionError, &missingCredential)

	messages := webhook.recorded()
	require.Len(testInstance, messages, 1)
	require.True(testInstance, strings.HasPrefix(messages[0], "ERROR"), messages[0])
	require.Contains(testInstance, messages[0], commandFailedMessageConstant)
	require.Contains(testInstance, messages[0], credentials.EnvClientID)
}
