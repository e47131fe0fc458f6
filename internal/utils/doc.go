// Package utils holds the configuration loader, logger factory and command
// plumbing shared by the CLI commands.
package utils
