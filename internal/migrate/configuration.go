package migrate

import (
	"strings"
	"time"
)

// CommandConfiguration captures the migration section of the configuration file.
type CommandConfiguration struct {
	WikiPage            string        `mapstructure:"wiki_page"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PacingDelay         time.Duration `mapstructure:"pacing_delay"`
	RateLimitBackoff    time.Duration `mapstructure:"rate_limit_backoff"`
	TransientBackoff    time.Duration `mapstructure:"transient_backoff"`
	BackoffMultiplier   float64       `mapstructure:"backoff_multiplier"`
	BackoffCap          time.Duration `mapstructure:"backoff_cap"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	IncludeLinkedObject bool          `mapstructure:"include_linked_object"`
}

// DefaultCommandConfiguration returns baseline migration settings.
func DefaultCommandConfiguration() CommandConfiguration {
	retryPolicy := DefaultRetryPolicy()
	return CommandConfiguration{
		WikiPage:          DefaultWikiPage,
		PollInterval:      DefaultPollInterval,
		PacingDelay:       retryPolicy.PacingDelay,
		RateLimitBackoff:  retryPolicy.RateLimitBackoff,
		TransientBackoff:  retryPolicy.TransientBackoff,
		BackoffMultiplier: retryPolicy.BackoffMultiplier,
	}
}

// Sanitize replaces missing or negative values with defaults.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.WikiPage = strings.TrimSpace(configuration.WikiPage)
	if len(sanitized.WikiPage) == 0 {
		sanitized.WikiPage = defaults.WikiPage
	}
	if sanitized.PollInterval <= 0 {
		sanitized.PollInterval = defaults.PollInterval
	}
	if sanitized.PacingDelay < 0 {
		sanitized.PacingDelay = defaults.PacingDelay
	}
	if sanitized.RateLimitBackoff < 0 {
		sanitized.RateLimitBackoff = defaults.RateLimitBackoff
	}
	if sanitized.TransientBackoff < 0 {
		sanitized.TransientBackoff = defaults.TransientBackoff
	}
	if sanitized.BackoffMultiplier < 1 {
		sanitized.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if sanitized.BackoffCap < 0 {
		sanitized.BackoffCap = 0
	}
	if sanitized.MaxAttempts < 0 {
		sanitized.MaxAttempts = 0
	}

	return sanitized
}

// RetryPolicy extracts the retry settings.
func (configuration CommandConfiguration) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       configuration.MaxAttempts,
		PacingDelay:       configuration.PacingDelay,
		RateLimitBackoff:  configuration.RateLimitBackoff,
		TransientBackoff:  configuration.TransientBackoff,
		BackoffMultiplier: configuration.BackoffMultiplier,
		BackoffCap:        configuration.BackoffCap,
	}
}
