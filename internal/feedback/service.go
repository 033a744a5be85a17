// Package feedback implements the per-item vote lifecycle and author
// tier toggles.
//
// An item moves unvoted -> voted(up|down) -> undone, and may be re-voted
// after an undo. Votes are append-only rows; undo marks a row rather
// than deleting it, so history survives for analysis.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/feed"
	"github.com/fyrsmithlabs/curator/internal/retrieval"
	"github.com/fyrsmithlabs/curator/internal/store"
)

// Errors returned by the vote lifecycle. Both are rejected outcomes of a
// valid request, not failures of the service.
var (
	ErrNoActiveVote = errors.New("no active vote to undo")
	ErrUndoTooLate  = errors.New("undo grace window expired")
)

// Config holds feedback behavior configuration.
type Config struct {
	// UndoGrace is how long after casting a vote an undo is accepted.
	UndoGrace time.Duration `koanf:"undo_grace"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.UndoGrace == 0 {
		c.UndoGrace = 10 * time.Second
	}
}

// Service coordinates votes, undo, tier toggles, and the retrieval index.
type Service struct {
	store     *store.Store
	retrieval *retrieval.Service
	grace     time.Duration
	logger    *zap.Logger
}

// NewService wires the feedback service.
func NewService(st *store.Store, rsvc *retrieval.Service, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Service{store: st, retrieval: rsvc, grace: cfg.UndoGrace, logger: logger}
}

// Vote records a vote on an item and indexes the item text under the
// vote label for future retrieval. Indexing is best-effort: its failure
// is logged and the vote stands.
func (s *Service) Vote(ctx context.Context, itemID string, vote feed.Vote, reason string) (*store.Feedback, error) {
	fb, err := s.store.SaveFeedback(ctx, itemID, vote, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info("vote recorded",
		zap.String("item_id", itemID),
		zap.String("vote", string(vote)),
	)

	item, err := s.store.ItemByID(ctx, itemID)
	if err == nil && item == nil {
		err = fmt.Errorf("item %s not in store", itemID)
	}
	if err == nil {
		err = s.retrieval.IndexVoted(ctx, itemID, item.Text, vote)
	}
	if err != nil {
		s.logger.Warn("voted item not indexed for retrieval",
			zap.String("item_id", itemID), zap.Error(err))
	}
	return fb, nil
}

// Undo retracts the item's active vote if it was cast within the grace
// window. The store's conditional update arbitrates concurrent undos: at
// most one caller succeeds, the rest get the same rejections a serial
// ordering would produce.
func (s *Service) Undo(ctx context.Context, itemID string) error {
	active, err := s.store.ActiveFeedback(ctx, itemID)
	if err != nil {
		return err
	}
	if active == nil {
		return fmt.Errorf("%w: item %s", ErrNoActiveVote, itemID)
	}

	ok, err := s.store.MarkUndone(ctx, active.ID, s.grace)
	if err != nil {
		return err
	}
	if ok {
		// The index entry stays; analysis filters undone votes instead.
		s.logger.Info("vote undone", zap.String("item_id", itemID))
		return nil
	}

	// Nothing changed: the window had expired, or a concurrent undo won.
	if s.store.Now().Sub(active.CreatedAt) > s.grace {
		return fmt.Errorf("%w: vote on %s is older than %s", ErrUndoTooLate, itemID, s.grace)
	}
	return fmt.Errorf("%w: item %s", ErrNoActiveVote, itemID)
}

// ToggleFavorite promotes an author toward favorite: a muted author is
// reset to normal, anyone else becomes (or stays) favorite.
func (s *Service) ToggleFavorite(ctx context.Context, author string) (feed.Tier, error) {
	author = feed.NormalizeAuthor(author)
	tier, err := s.store.Tier(ctx, author)
	if err != nil {
		return tier, err
	}

	next := feed.TierFavorite
	if tier == feed.TierMuted {
		next = feed.TierNormal
	}
	if err := s.store.SetTier(ctx, author, next); err != nil {
		return tier, err
	}
	s.logger.Info("author tier changed",
		zap.String("author", author),
		zap.String("tier", string(next)),
	)
	return next, nil
}

// ToggleMute demotes an author toward muted: a favorite author is reset
// to normal, anyone else becomes (or stays) muted.
func (s *Service) ToggleMute(ctx context.Context, author string) (feed.Tier, error) {
	author = feed.NormalizeAuthor(author)
	tier, err := s.store.Tier(ctx, author)
	if err != nil {
		return tier, err
	}

	next := feed.TierMuted
	if tier == feed.TierFavorite {
		next = feed.TierNormal
	}
	if err := s.store.SetTier(ctx, author, next); err != nil {
		return tier, err
	}
	s.logger.Info("author tier changed",
		zap.String("author", author),
		zap.String("tier", string(next)),
	)
	return next, nil
}
