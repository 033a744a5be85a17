// Package feed defines the shared domain types for the curation pipeline:
// candidate items, vote labels, and author tiers.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode"
)

// Common errors for feed types.
var (
	ErrEmptyItemID = errors.New("item ID cannot be empty")
	ErrInvalidVote = errors.New("vote must be 'up' or 'down'")
)

// Vote is an explicit user feedback label on an item.
type Vote string

const (
	// VoteUp marks an item the user wanted to see.
	VoteUp Vote = "up"

	// VoteDown marks an item the user did not want to see.
	VoteDown Vote = "down"
)

// Valid reports whether the vote is one of the two known labels.
func (v Vote) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// Tier is an author's delivery tier. Each tier carries a distinct
// decision-threshold offset; favorite lowers the bar, muted raises it.
type Tier string

const (
	TierFavorite Tier = "favorite"
	TierNormal   Tier = "normal"
	TierMuted    Tier = "muted"
)

// Metrics holds engagement counters carried through from the candidate
// source. The pipeline passes them to the judge but never interprets them.
type Metrics struct {
	Likes   int `json:"likes"`
	Reposts int `json:"reposts"`
	Replies int `json:"replies"`
}

// Item is one candidate item from the source feed. Immutable once fetched.
type Item struct {
	// ID is the stable source identity.
	ID string `json:"id"`

	// Author is the author's handle, lowercased.
	Author string `json:"author"`

	// AuthorName is the author's display name.
	AuthorName string `json:"author_name,omitempty"`

	// Text is the item's content.
	Text string `json:"text"`

	// QuotedText is the content of a quoted item, if any.
	QuotedText string `json:"quoted_text,omitempty"`

	// URL is the canonical link to the item.
	URL string `json:"url,omitempty"`

	// CreatedAt is the item's timestamp at the source.
	CreatedAt time.Time `json:"created_at"`

	// Metrics are opaque engagement counters.
	Metrics Metrics `json:"metrics"`
}

// Validate checks the fields the pipeline depends on.
func (i Item) Validate() error {
	if i.ID == "" {
		return ErrEmptyItemID
	}
	return nil
}

// Fingerprint returns a content fingerprint for duplicate suppression.
// Reshares of already-scored content carry different item IDs but the
// same fingerprint, so dedup keys on this rather than on identity.
func (i Item) Fingerprint() string {
	sum := sha256.Sum256([]byte(normalizeText(i.Text)))
	return hex.EncodeToString(sum[:])
}

// NormalizeAuthor canonicalizes an author handle: lowercased, without
// the leading @. Every author read or write goes through this so tier
// lookups stay case-insensitive no matter how the source spells the
// handle.
func NormalizeAuthor(author string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(author), "@"))
}

// normalizeText lowercases and collapses all whitespace runs so that
// trivial reformatting does not defeat duplicate detection.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
