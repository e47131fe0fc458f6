// Package migrate moves legacy toolbox usernotes into moderation notes.
//
// Service fetches and translates the legacy wiki document, uploads the resulting
// notes while honouring rate limits, and can delete the notes it created. Poller
// repeats fetch and upload on an interval, carrying the watermark between cycles
// in a Session. The sync, preview and rollback commands expose these operations.
package migrate
