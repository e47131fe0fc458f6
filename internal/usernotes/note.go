package usernotes

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

const (
	// MaximumNoteLength is the longest note text accepted by the moderation notes API.
	MaximumNoteLength = 250

	noteDateLayoutConstant                   = "2006-01-02"
	noteTextTemplateConstant                 = "%s | %s | %s"
	moderatorIndexMissingTemplateConstant    = "note %d for %s has no moderator index"
	moderatorIndexOutOfRangeTemplateConstant = "note %d for %s references unknown moderator index %d"
	warningIndexOutOfRangeTemplateConstant   = "note %d for %s references unknown warning index %d"
)

// Note is a moderation note ready to be created through the notes API.
type Note struct {
	Label       *Label          `yaml:"label"`
	Text        string          `yaml:"note"`
	TargetUser  string          `yaml:"user"`
	Community   string          `yaml:"subreddit"`
	LinkedThing *ThingReference `yaml:"thing"`
}

// TranslationOptions controls which legacy notes are translated and how.
type TranslationOptions struct {
	Community           string
	AfterEpoch          int64
	IncludeLinkedObject bool
}

// TranslationResult holds the translated notes and the link specs that could not be resolved.
type TranslationResult struct {
	Notes            []Note
	LinkSpecFailures []LinkSpecError
}

// Translate renders every legacy note whose timestamp is at or after options.AfterEpoch.
// Users are visited in lexicographic order and each user's notes keep their document order.
// Unresolvable link specs are collected when linked objects are excluded and returned as an
// error when they are included.
func Translate(document LegacyDocument, options TranslationOptions) (TranslationResult, error) {
	targetUsers := make([]string, 0, len(document.Users))
	for targetUser := range document.Users {
		targetUsers = append(targetUsers, targetUser)
	}
	sort.Strings(targetUsers)

	result := TranslationResult{Notes: []Note{}}
	for _, targetUser := range targetUsers {
		for noteIndex, legacyNote := range document.Users[targetUser].Notes {
			if int64(legacyNote.TimestampEpoch) < options.AfterEpoch {
				continue
			}

			translatedNote, linkError, translationError := translateNote(document.Constants, targetUser, noteIndex, legacyNote, options)
			if translationError != nil {
				return TranslationResult{}, translationError
			}
			if linkError != nil {
				if options.IncludeLinkedObject {
					return TranslationResult{}, *linkError
				}
				result.LinkSpecFailures = append(result.LinkSpecFailures, *linkError)
			}

			result.Notes = append(result.Notes, translatedNote)
		}
	}

	return result, nil
}

func translateNote(constants Constants, targetUser string, noteIndex int, legacyNote LegacyNote, options TranslationOptions) (Note, *LinkSpecError, error) {
	if legacyNote.ModeratorIndex == nil {
		return Note{}, nil, InvalidDocumentError{Message: fmt.Sprintf(moderatorIndexMissingTemplateConstant, noteIndex, targetUser)}
	}
	moderatorIndex := *legacyNote.ModeratorIndex
	if moderatorIndex < 0 || moderatorIndex >= len(constants.Users) {
		return Note{}, nil, InvalidDocumentError{Message: fmt.Sprintf(moderatorIndexOutOfRangeTemplateConstant, noteIndex, targetUser, moderatorIndex)}
	}
	moderatorName := constants.Users[moderatorIndex]

	noteDate := time.Unix(int64(legacyNote.TimestampEpoch), 0).UTC().Format(noteDateLayoutConstant)
	noteText := TruncateNoteText(fmt.Sprintf(noteTextTemplateConstant, noteDate, moderatorName, legacyNote.Text))

	var noteLabel *Label
	if legacyNote.WarningIndex != nil {
		warningIndex := *legacyNote.WarningIndex
		if warningIndex < 0 || warningIndex >= len(constants.Warnings) {
			return Note{}, nil, InvalidDocumentError{Message: fmt.Sprintf(warningIndexOutOfRangeTemplateConstant, noteIndex, targetUser, warningIndex)}
		}
		if translatedLabel, labelKnown := TranslateLabel(constants.Warnings[warningIndex]); labelKnown {
			noteLabel = &translatedLabel
		}
	}

	linkedThing, parseError := ParseLinkSpec(legacyNote.LinkSpec)
	var linkError *LinkSpecError
	if parseError != nil {
		var specError LinkSpecError
		if !errors.As(parseError, &specError) {
			return Note{}, nil, parseError
		}
		specError.TargetUser = targetUser
		linkError = &specError
	}

	translatedNote := Note{
		Label:      noteLabel,
		Text:       noteText,
		TargetUser: targetUser,
		Community:  options.Community,
	}
	if options.IncludeLinkedObject {
		translatedNote.LinkedThing = linkedThing
	}

	return translatedNote, linkError, nil
}

// TruncateNoteText limits text to MaximumNoteLength characters.
func TruncateNoteText(text string) string {
	if utf8.RuneCountInString(text) <= MaximumNoteLength {
		return text
	}
	return string([]rune(text)[:MaximumNoteLength])
}
