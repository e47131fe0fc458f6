// Package reddit is a small OAuth client for the wiki, account and moderation
// notes endpoints, classifying every failure into an ErrorKind.
package reddit
