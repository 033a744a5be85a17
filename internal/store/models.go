package store

import "time"

// Item is a persisted candidate item with its control scoring result.
type Item struct {
	ID          string `gorm:"primaryKey"`
	Author      string `gorm:"index"`
	AuthorName  string
	Text        string
	Fingerprint string `gorm:"index"`
	URL         string
	Likes       int
	Reposts     int
	Replies     int
	PostedAt    time.Time
	Score       *float64
	ScoreReason string
	Delivered   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScoreRecord is one strategy invocation's result for one item.
type ScoreRecord struct {
	ID          uint   `gorm:"primaryKey"`
	ItemID      string `gorm:"index"`
	StrategyKey string `gorm:"index"`
	Score       float64
	RawOutput   string
	CreatedAt   time.Time
}

// ExperimentPair is one paired control/challenger score. At most one row
// exists per (experiment, item); re-scoring overwrites.
type ExperimentPair struct {
	ExperimentID    string `gorm:"primaryKey"`
	ItemID          string `gorm:"primaryKey"`
	ControlScore    float64
	ChallengerScore float64
	ControlKey      string
	ChallengerKey   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Feedback is one vote event. Rows are append-only; undo sets UndoneAt.
// The active vote for an item is the most recent row with UndoneAt nil.
type Feedback struct {
	ID        uint   `gorm:"primaryKey"`
	ItemID    string `gorm:"index"`
	Vote      string
	Reason    string
	CreatedAt time.Time
	UndoneAt  *time.Time
}

// AuthorTier is an author's persistent delivery tier.
type AuthorTier struct {
	Author    string `gorm:"primaryKey"`
	Tier      string
	UpdatedAt time.Time
}
