// Package credentials resolves the OAuth application credentials and target
// community from the process environment.
package credentials
