package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// UpsertExperimentPair stores or overwrites the paired score for
// (experiment, item). Idempotent: re-scoring the same item under the
// same experiment never duplicates the pair.
func (s *Store) UpsertExperimentPair(ctx context.Context, pair *ExperimentPair) error {
	now := s.now()
	if pair.CreatedAt.IsZero() {
		pair.CreatedAt = now
	}
	pair.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "experiment_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"control_score", "challenger_score", "control_key", "challenger_key", "updated_at",
		}),
	}).Create(pair).Error
	if err != nil {
		return fmt.Errorf("upserting pair (%s, %s): %w", pair.ExperimentID, pair.ItemID, err)
	}
	return nil
}

// PairsForExperiment returns all recorded pairs for an experiment.
func (s *Store) PairsForExperiment(ctx context.Context, experimentID string) ([]ExperimentPair, error) {
	var pairs []ExperimentPair
	err := s.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("created_at ASC").
		Find(&pairs).Error
	if err != nil {
		return nil, fmt.Errorf("loading pairs for %s: %w", experimentID, err)
	}
	return pairs, nil
}
