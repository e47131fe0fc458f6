// Package usernotes decodes the legacy moderation toolbox usernotes wiki page
// and translates its entries into moderation notes.
//
// The wiki page carries a JSON envelope with lookup tables and a base64 encoded,
// zlib compressed blob mapping target users to their notes. Translator filters
// the decoded notes by timestamp and renders each one into a Note ready for the
// moderation notes API.
package usernotes
