package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fyrsmithlabs/curator/internal/feed"
)

// SaveFeedback appends a vote event stamped with the store clock.
func (s *Store) SaveFeedback(ctx context.Context, itemID string, vote feed.Vote, reason string) (*Feedback, error) {
	if !vote.Valid() {
		return nil, fmt.Errorf("%w: %q", feed.ErrInvalidVote, vote)
	}

	fb := &Feedback{
		ItemID:    itemID,
		Vote:      string(vote),
		Reason:    reason,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(fb).Error; err != nil {
		return nil, fmt.Errorf("saving feedback for %s: %w", itemID, err)
	}
	return fb, nil
}

// ActiveFeedback returns the most recent non-undone vote for an item, or
// (nil, nil) when the item has no active vote.
func (s *Store) ActiveFeedback(ctx context.Context, itemID string) (*Feedback, error) {
	var fb Feedback
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND undone_at IS NULL", itemID).
		Order("created_at DESC, id DESC").
		First(&fb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active feedback for %s: %w", itemID, err)
	}
	return &fb, nil
}

// ActiveVotes returns the active vote label per item across the corpus.
func (s *Store) ActiveVotes(ctx context.Context) (map[string]feed.Vote, error) {
	var rows []Feedback
	err := s.db.WithContext(ctx).
		Where("undone_at IS NULL").
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading active votes: %w", err)
	}

	votes := make(map[string]feed.Vote, len(rows))
	for _, fb := range rows {
		votes[fb.ItemID] = feed.Vote(fb.Vote)
	}
	return votes, nil
}

// MarkUndone marks the feedback row undone if it is still active and its
// vote was cast within the grace window. The conditional update is the
// race arbiter: of any number of concurrent undo requests for the same
// vote, at most one observes a row change.
func (s *Store) MarkUndone(ctx context.Context, feedbackID uint, grace time.Duration) (bool, error) {
	now := s.now()
	cutoff := now.Add(-grace)

	res := s.db.WithContext(ctx).Model(&Feedback{}).
		Where("id = ? AND undone_at IS NULL AND created_at > ?", feedbackID, cutoff).
		Update("undone_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("undoing feedback %d: %w", feedbackID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Tier returns the author's delivery tier, defaulting to normal for
// authors never toggled. The handle is normalized before lookup so a
// toggle on "@Alice" resolves for items authored by "alice".
func (s *Store) Tier(ctx context.Context, author string) (feed.Tier, error) {
	author = feed.NormalizeAuthor(author)
	var t AuthorTier
	err := s.db.WithContext(ctx).First(&t, "author = ?", author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return feed.TierNormal, nil
	}
	if err != nil {
		return feed.TierNormal, fmt.Errorf("loading tier for %s: %w", author, err)
	}
	return feed.Tier(t.Tier), nil
}

// SetTier upserts the author's tier under the normalized handle.
func (s *Store) SetTier(ctx context.Context, author string, tier feed.Tier) error {
	author = feed.NormalizeAuthor(author)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "author"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier", "updated_at"}),
	}).Create(&AuthorTier{Author: author, Tier: string(tier), UpdatedAt: s.now()}).Error
	if err != nil {
		return fmt.Errorf("setting tier for %s: %w", author, err)
	}
	return nil
}
