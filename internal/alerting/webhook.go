package alerting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultWebhookTimeout bounds a single webhook delivery.
	DefaultWebhookTimeout = 10 * time.Second

	contentTypeHeaderConstant            = "Content-Type"
	jsonContentTypeConstant              = "application/json"
	webhookURLRequiredMessageConstant    = "webhook url required"
	webhookDeliveryErrorTemplateConstant = "webhook delivery failed: %w"
	webhookStatusErrorTemplateConstant   = "webhook responded with status %d: %s"
)

// ErrWebhookURLRequired indicates that a webhook client was built without a destination.
var ErrWebhookURLRequired = errors.New(webhookURLRequiredMessageConstant)

// Poster delivers a rendered alert.
type Poster interface {
	Post(executionContext context.Context, text string) error
}

// WebhookStatusError reports a non-success response from the webhook endpoint.
type WebhookStatusError struct {
	StatusCode int
	Body       string
}

// Error describes the rejected delivery.
func (statusError WebhookStatusError) Error() string {
	return fmt.Sprintf(webhookStatusErrorTemplateConstant, statusError.StatusCode, statusError.Body)
}

type webhookPayload struct {
	Text string `json:"text"`
}

// WebhookClient posts alerts to an incoming webhook URL.
type WebhookClient struct {
	webhookURL string
	httpClient *resty.Client
}

// NewWebhookClient builds a WebhookClient. A non-positive timeout selects DefaultWebhookTimeout.
func NewWebhookClient(webhookURL string, timeout time.Duration) (*WebhookClient, error) {
	trimmedURL := strings.TrimSpace(webhookURL)
	if len(trimmedURL) == 0 {
		return nil, ErrWebhookURLRequired
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}

	httpClient := resty.New()
	httpClient.SetTimeout(timeout)
	httpClient.SetHeader(contentTypeHeaderConstant, jsonContentTypeConstant)

	return &WebhookClient{webhookURL: trimmedURL, httpClient: httpClient}, nil
}

// Post sends text as a webhook message.
func (client *WebhookClient) Post(executionContext context.Context, text string) error {
	response, requestError := client.httpClient.R().
		SetContext(executionContext).
		SetBody(webhookPayload{Text: text}).
		Post(client.webhookURL)
	if requestError != nil {
		return fmt.Errorf(webhookDeliveryErrorTemplateConstant, requestError)
	}
	if response.StatusCode() >= http.StatusMultipleChoices {
		return WebhookStatusError{StatusCode: response.StatusCode(), Body: strings.TrimSpace(response.String())}
	}
	return nil
}
