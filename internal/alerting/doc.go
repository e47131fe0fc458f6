// Package alerting forwards severe log entries to a chat webhook.
//
// NewCore returns a zapcore.Core that is teed next to the regular output core, so
// any entry at or above the configured level is rendered as a single line and
// posted as {"text": ...} to a Slack-compatible incoming webhook.
package alerting
