package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/temirov/usernotes/internal/credentials"
)

// Default endpoints and transport settings.
const (
	DefaultAPIBaseURL = "https://oauth.reddit.com"
	DefaultTokenURL   = "https://www.reddit.com/api/v1/access_token"
	DefaultUserAgent  = "linux:usernotes:v1.0.0"
	DefaultTimeout    = 30 * time.Second
)

const (
	wikiPagePathTemplateConstant           = "/r/%s/wiki/%s"
	currentUserPathConstant                = "/api/v1/me"
	modNotesPathConstant                   = "/api/mod/notes"
	userAgentHeaderConstant                = "User-Agent"
	grantTypeFieldConstant                 = "grant_type"
	refreshTokenFieldConstant              = "refresh_token"
	subredditFieldConstant                 = "subreddit"
	userFieldConstant                      = "user"
	noteFieldConstant                      = "note"
	labelFieldConstant                     = "label"
	redditIdentifierFieldConstant          = "reddit_id"
	noteIdentifierFieldConstant            = "note_id"
	filterFieldConstant                    = "filter"
	limitFieldConstant                     = "limit"
	beforeFieldConstant                    = "before"
	rawJSONFieldConstant                   = "raw_json"
	rawJSONEnabledValueConstant            = "1"
	listPageSizeValueConstant              = "100"
	tokenExpiryMarginConstant              = time.Minute
	defaultAccessTokenLifetimeConstant     = time.Hour
	requiredValueMessageConstant           = "value required"
	clientIdentifierFieldNameConstant      = "client_id"
	clientSecretFieldNameConstant          = "client_secret"
	refreshTokenFieldNameConstant          = "refresh_token"
	missingAccessTokenMessageConstant      = "token response did not include an access token"
	responseDecodingErrorTemplateConstant  = "unable to decode %s response: %w"
	logMessageResponseReceivedConstant     = "Platform response received"
	logMessageAccessTokenRefreshedConstant = "Access token refreshed"
	logFieldMethodConstant                 = "method"
	logFieldURLConstant                    = "url"
	logFieldStatusCodeConstant             = "status_code"
	logFieldDurationConstant               = "duration"
	logFieldExpiresInConstant              = "expires_in_seconds"
)

// ClientConfiguration configures the platform endpoints and HTTP transport.
type ClientConfiguration struct {
	APIBaseURL string
	TokenURL   string
	UserAgent  string
	Timeout    time.Duration
}

// Client calls the wiki, account and moderation notes APIs with an OAuth refresh token.
type Client struct {
	logger            *zap.Logger
	httpClient        *resty.Client
	appCredentials    credentials.Credentials
	tokenURL          string
	now               func() time.Time
	tokenMutex        sync.Mutex
	accessToken       string
	accessTokenExpiry time.Time
}

// NewClient validates the credentials and builds a Client.
func NewClient(logger *zap.Logger, appCredentials credentials.Credentials, configuration ClientConfiguration) (*Client, error) {
	requiredValues := []struct {
		fieldName string
		value     string
	}{
		{fieldName: clientIdentifierFieldNameConstant, value: appCredentials.ClientID},
		{fieldName: clientSecretFieldNameConstant, value: appCredentials.ClientSecret},
		{fieldName: refreshTokenFieldNameConstant, value: appCredentials.RefreshToken},
	}
	for _, requiredValue := range requiredValues {
		if len(strings.TrimSpace(requiredValue.value)) == 0 {
			return nil, InvalidInputError{FieldName: requiredValue.fieldName, Message: requiredValueMessageConstant}
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	apiBaseURL := strings.TrimRight(strings.TrimSpace(configuration.APIBaseURL), "/")
	if len(apiBaseURL) == 0 {
		apiBaseURL = DefaultAPIBaseURL
	}
	tokenURL := strings.TrimSpace(configuration.TokenURL)
	if len(tokenURL) == 0 {
		tokenURL = DefaultTokenURL
	}
	userAgent := strings.TrimSpace(configuration.UserAgent)
	if len(userAgent) == 0 {
		userAgent = DefaultUserAgent
	}
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(apiBaseURL)
	httpClient.SetHeader(userAgentHeaderConstant, userAgent)
	httpClient.SetTimeout(timeout)

	client := &Client{
		logger:         logger,
		httpClient:     httpClient,
		appCredentials: appCredentials,
		tokenURL:       tokenURL,
		now:            time.Now,
	}
	httpClient.OnAfterResponse(client.logResponse)

	return client, nil
}

// WikiPageContent returns the markdown content of a community wiki page.
func (client *Client) WikiPageContent(executionContext context.Context, subreddit string, pageName string) (string, error) {
	if len(strings.TrimSpace(subreddit)) == 0 {
		return "", InvalidInputError{FieldName: subredditFieldConstant, Message: requiredValueMessageConstant}
	}

	response, requestError := client.execute(executionContext, OperationWikiPage, http.MethodGet, fmt.Sprintf(wikiPagePathTemplateConstant, subreddit, pageName), func(request *resty.Request) {
		request.SetQueryParam(rawJSONFieldConstant, rawJSONEnabledValueConstant)
	})
	if requestError != nil {
		return "", requestError
	}

	var page wikiPageResponse
	if decodeError := json.Unmarshal(response.Body(), &page); decodeError != nil {
		return "", fmt.Errorf(responseDecodingErrorTemplateConstant, OperationWikiPage, decodeError)
	}

	return page.Data.ContentMarkdown, nil
}

// CurrentUser returns the name of the account the refresh token belongs to.
func (client *Client) CurrentUser(executionContext context.Context) (string, error) {
	response, requestError := client.execute(executionContext, OperationCurrentUser, http.MethodGet, currentUserPathConstant, nil)
	if requestError != nil {
		return "", requestError
	}

	var user currentUserResponse
	if decodeError := json.Unmarshal(response.Body(), &user); decodeError != nil {
		return "", fmt.Errorf(responseDecodingErrorTemplateConstant, OperationCurrentUser, decodeError)
	}

	return user.Name, nil
}

// CreateNote creates a moderation note.
func (client *Client) CreateNote(executionContext context.Context, noteRequest CreateNoteRequest) error {
	if len(strings.TrimSpace(noteRequest.Subreddit)) == 0 {
		return InvalidInputError{FieldName: subredditFieldConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(noteRequest.User)) == 0 {
		return InvalidInputError{FieldName: userFieldConstant, Message: requiredValueMessageConstant}
	}

	formData := map[string]string{
		subredditFieldConstant: noteRequest.Subreddit,
		userFieldConstant:      noteRequest.User,
		noteFieldConstant:      noteRequest.Note,
	}
	if len(noteRequest.Label) > 0 {
		formData[labelFieldConstant] = noteRequest.Label
	}
	if len(noteRequest.RedditID) > 0 {
		formData[redditIdentifierFieldConstant] = noteRequest.RedditID
	}

	_, requestError := client.execute(executionContext, OperationCreateNote, http.MethodPost, modNotesPathConstant, func(request *resty.Request) {
		request.SetFormData(formData)
	})
	return requestError
}

// ListUserNotes returns every moderation note of type NOTE recorded for user, following pagination.
func (client *Client) ListUserNotes(executionContext context.Context, subreddit string, user string) ([]ModNote, error) {
	queryParameters := map[string]string{
		subredditFieldConstant: subreddit,
		userFieldConstant:      user,
		filterFieldConstant:    NoteTypeNote,
		limitFieldConstant:     listPageSizeValueConstant,
	}

	notes := []ModNote{}
	cursor := ""
	for {
		if len(cursor) > 0 {
			queryParameters[beforeFieldConstant] = cursor
		}

		response, requestError := client.execute(executionContext, OperationListUserNotes, http.MethodGet, modNotesPathConstant, func(request *resty.Request) {
			request.SetQueryParams(queryParameters)
		})
		if requestError != nil {
			return nil, requestError
		}

		var page modNotesResponse
		if decodeError := json.Unmarshal(response.Body(), &page); decodeError != nil {
			return nil, fmt.Errorf(responseDecodingErrorTemplateConstant, OperationListUserNotes, decodeError)
		}
		notes = append(notes, page.ModNotes...)

		if !page.HasNextPage || len(page.EndCursor) == 0 || page.EndCursor == cursor {
			return notes, nil
		}
		cursor = page.EndCursor
	}
}

// DeleteNote deletes a moderation note.
func (client *Client) DeleteNote(executionContext context.Context, subreddit string, user string, noteIdentifier string) error {
	if len(strings.TrimSpace(noteIdentifier)) == 0 {
		return InvalidInputError{FieldName: noteIdentifierFieldConstant, Message: requiredValueMessageConstant}
	}

	_, requestError := client.execute(executionContext, OperationDeleteNote, http.MethodDelete, modNotesPathConstant, func(request *resty.Request) {
		request.SetQueryParams(map[string]string{
			subredditFieldConstant:      subreddit,
			userFieldConstant:           user,
			noteIdentifierFieldConstant: noteIdentifier,
		})
	})
	return requestError
}

func (client *Client) execute(executionContext context.Context, operation OperationName, method string, path string, configure func(*resty.Request)) (*resty.Response, error) {
	for attempt := 0; ; attempt++ {
		accessToken, tokenError := client.ensureAccessToken(executionContext)
		if tokenError != nil {
			return nil, tokenError
		}

		request := client.httpClient.R().SetContext(executionContext).SetAuthToken(accessToken)
		if configure != nil {
			configure(request)
		}

		response, requestError := request.Execute(method, path)
		if requestError != nil {
			if contextError := executionContext.Err(); contextError != nil {
				return nil, contextError
			}
			return nil, APIError{Operation: operation, Kind: ErrorKindTransient, Cause: requestError}
		}

		if response.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			client.invalidateAccessToken()
			continue
		}

		if response.IsError() {
			return nil, newResponseError(operation, response)
		}

		return response, nil
	}
}

func (client *Client) ensureAccessToken(executionContext context.Context) (string, error) {
	client.tokenMutex.Lock()
	defer client.tokenMutex.Unlock()

	if len(client.accessToken) > 0 && client.now().Before(client.accessTokenExpiry) {
		return client.accessToken, nil
	}

	response, requestError := client.httpClient.R().
		SetContext(executionContext).
		SetBasicAuth(client.appCredentials.ClientID, client.appCredentials.ClientSecret).
		SetFormData(map[string]string{
			grantTypeFieldConstant:    refreshTokenFieldConstant,
			refreshTokenFieldConstant: client.appCredentials.RefreshToken,
		}).
		Post(client.tokenURL)
	if requestError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return "", contextError
		}
		return "", APIError{Operation: OperationRefreshToken, Kind: ErrorKindTransient, Cause: requestError}
	}
	if response.IsError() {
		return "", newResponseError(OperationRefreshToken, response)
	}

	var token accessTokenResponse
	if decodeError := json.Unmarshal(response.Body(), &token); decodeError != nil {
		return "", fmt.Errorf(responseDecodingErrorTemplateConstant, OperationRefreshToken, decodeError)
	}
	if len(token.AccessToken) == 0 {
		return "", APIError{
			Operation:  OperationRefreshToken,
			StatusCode: response.StatusCode(),
			Kind:       ErrorKindFatal,
			Message:    responseMessage(response, missingAccessTokenMessageConstant),
		}
	}

	client.accessToken = token.AccessToken
	client.accessTokenExpiry = client.now().Add(accessTokenLifetime(token.ExpiresIn))
	client.logger.Debug(logMessageAccessTokenRefreshedConstant, zap.Int(logFieldExpiresInConstant, token.ExpiresIn))

	return client.accessToken, nil
}

// accessTokenLifetime returns how long a token stays usable, reserving at most half of its lifetime as refresh margin.
func accessTokenLifetime(expiresInSeconds int) time.Duration {
	lifetime := time.Duration(expiresInSeconds) * time.Second
	if lifetime <= 0 {
		lifetime = defaultAccessTokenLifetimeConstant
	}
	return lifetime - min(tokenExpiryMarginConstant, lifetime/2)
}

func (client *Client) invalidateAccessToken() {
	client.tokenMutex.Lock()
	defer client.tokenMutex.Unlock()
	client.accessToken = ""
	client.accessTokenExpiry = time.Time{}
}

func (client *Client) logResponse(_ *resty.Client, response *resty.Response) error {
	client.logger.Debug(
		logMessageResponseReceivedConstant,
		zap.String(logFieldMethodConstant, response.Request.Method),
		zap.String(logFieldURLConstant, response.Request.URL),
		zap.Int(logFieldStatusCodeConstant, response.StatusCode()),
		zap.Duration(logFieldDurationConstant, response.Time()),
	)
	return nil
}

func newResponseError(operation OperationName, response *resty.Response) APIError {
	return APIError{
		Operation:  operation,
		StatusCode: response.StatusCode(),
		Kind:       ClassifyStatus(operation, response.StatusCode()),
		Message:    responseMessage(response, http.StatusText(response.StatusCode())),
	}
}

func responseMessage(response *resty.Response, fallback string) string {
	var body errorResponse
	if decodeError := json.Unmarshal(response.Body(), &body); decodeError != nil {
		return fallback
	}
	for _, candidate := range []string{body.Explanation, body.Reason, body.Message} {
		if trimmed := strings.TrimSpace(candidate); len(trimmed) > 0 {
			return trimmed
		}
	}
	if body.Error != nil {
		return fmt.Sprint(body.Error)
	}
	return fallback
}
