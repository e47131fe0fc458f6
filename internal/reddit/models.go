package reddit

// NoteTypeNote is the moderation note type recorded for notes written by moderators.
const NoteTypeNote = "NOTE"

// CreateNoteRequest describes a moderation note to create.
type CreateNoteRequest struct {
	Subreddit string
	User      string
	Note      string
	Label     string
	RedditID  string
}

// UserNoteData carries the moderator supplied portion of a moderation note.
type UserNoteData struct {
	Note     string  `json:"note"`
	Label    *string `json:"label"`
	RedditID *string `json:"reddit_id"`
}

// ModNote is a moderation note as listed by the notes API.
type ModNote struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Operator     string       `json:"operator"`
	OperatorID   string       `json:"operator_id"`
	User         string       `json:"user"`
	Subreddit    string       `json:"subreddit"`
	CreatedAt    int64        `json:"created_at"`
	UserNoteData UserNoteData `json:"user_note_data"`
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

type wikiPageResponse struct {
	Kind string `json:"kind"`
	Data struct {
		ContentMarkdown string `json:"content_md"`
		RevisionDate    int64  `json:"revision_date"`
	} `json:"data"`
}

type currentUserResponse struct {
	Name string `json:"name"`
}

type modNotesResponse struct {
	ModNotes    []ModNote `json:"mod_notes"`
	StartCursor string    `json:"start_cursor"`
	EndCursor   string    `json:"end_cursor"`
	HasNextPage bool      `json:"has_next_page"`
}

type errorResponse struct {
	Message     string `json:"message"`
	Error       any    `json:"error"`
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
}
