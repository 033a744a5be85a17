// Package experiment records paired control/challenger scores and turns
// them into comparison reports against user feedback.
package experiment

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/store"
)

// Recorder persists paired scores. One row per (experiment, item);
// recording the same pair again overwrites rather than duplicates, so a
// re-scored batch cannot inflate the sample.
type Recorder struct {
	store  *store.Store
	logger *zap.Logger
}

// NewRecorder creates a recorder backed by the store.
func NewRecorder(st *store.Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: st, logger: logger}
}

// RecordPair upserts the paired score for (pair.ExperimentID, pair.ItemID).
func (r *Recorder) RecordPair(ctx context.Context, pair store.ExperimentPair) error {
	if err := r.store.UpsertExperimentPair(ctx, &pair); err != nil {
		return err
	}
	r.logger.Debug("pair recorded",
		zap.String("experiment_id", pair.ExperimentID),
		zap.String("item_id", pair.ItemID),
		zap.Float64("control", pair.ControlScore),
		zap.Float64("challenger", pair.ChallengerScore),
	)
	return nil
}
