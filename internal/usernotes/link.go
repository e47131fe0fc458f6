package usernotes

import (
	"errors"
	"fmt"
	"strings"
)

const (
	linkSpecSeparatorConstant              = ","
	postFullNamePrefixConstant             = "t3_"
	commentFullNamePrefixConstant          = "t1_"
	unrecognizedLinkSpecMessageConstant    = "unrecognized link spec"
	linkSpecErrorTemplateConstant          = "%s %q (%d tokens)"
	linkSpecNoLinkTokenCountConstant       = 1
	linkSpecPostTokenCountConstant         = 2
	linkSpecCommentTokenCountConstant      = 3
	linkSpecPostIdentifierIndexConstant    = 1
	linkSpecCommentIdentifierIndexConstant = 2
)

// ThingKind enumerates the content types a note may link to.
type ThingKind string

// Linked content kinds.
const (
	ThingKindPost    ThingKind = ThingKind("post")
	ThingKindComment ThingKind = ThingKind("comment")
)

// ErrUnrecognizedLinkSpec indicates a link spec whose token count has no known meaning.
var ErrUnrecognizedLinkSpec = errors.New(unrecognizedLinkSpecMessageConstant)

// LinkSpecError describes a link spec that could not be resolved.
type LinkSpecError struct {
	TargetUser string
	LinkSpec   string
	TokenCount int
}

// Error describes the unresolved link spec.
func (linkError LinkSpecError) Error() string {
	return fmt.Sprintf(linkSpecErrorTemplateConstant, unrecognizedLinkSpecMessageConstant, linkError.LinkSpec, linkError.TokenCount)
}

// Unwrap exposes ErrUnrecognizedLinkSpec for errors.Is checks.
func (linkError LinkSpecError) Unwrap() error {
	return ErrUnrecognizedLinkSpec
}

// ThingReference points at a post or comment on the platform.
type ThingReference struct {
	Kind       ThingKind `yaml:"kind"`
	Identifier string    `yaml:"id"`
}

// FullName renders the platform full name of the referenced thing.
func (reference ThingReference) FullName() string {
	switch reference.Kind {
	case ThingKindComment:
		return commentFullNamePrefixConstant + reference.Identifier
	default:
		return postFullNamePrefixConstant + reference.Identifier
	}
}

// ParseLinkSpec interprets a toolbox link spec. A single token carries no link,
// two tokens reference a post by the second token and three tokens reference a
// comment by the third token.
func ParseLinkSpec(linkSpec string) (*ThingReference, error) {
	tokens := strings.Split(linkSpec, linkSpecSeparatorConstant)
	switch len(tokens) {
	case linkSpecNoLinkTokenCountConstant:
		return nil, nil
	case linkSpecPostTokenCountConstant:
		return &ThingReference{Kind: ThingKindPost, Identifier: tokens[linkSpecPostIdentifierIndexConstant]}, nil
	case linkSpecCommentTokenCountConstant:
		return &ThingReference{Kind: ThingKindComment, Identifier: tokens[linkSpecCommentIdentifierIndexConstant]}, nil
	default:
		return nil, LinkSpecError{LinkSpec: linkSpec, TokenCount: len(tokens)}
	}
}
