// Package cli constructs the usernotes command-line interface. It wires the
// Cobra command hierarchy to the configuration loader, the structured logger
// with its optional alert webhook, the platform client and the migration
// commands.
package cli
