// Package scoring runs the dual-path scoring pipeline: per-item context
// construction, control and shadow (challenger) judge invocations against
// a frozen context, and tier-adjusted delivery decisions.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/feed"
	"github.com/fyrsmithlabs/curator/internal/judge"
	"github.com/fyrsmithlabs/curator/internal/retrieval"
	"github.com/fyrsmithlabs/curator/internal/store"
	"github.com/fyrsmithlabs/curator/internal/strategy"
)

var tracer = otel.Tracer("curator.scoring")

// ErrItemNotScored means the judge response did not cover the item.
var ErrItemNotScored = errors.New("item missing from judge response")

// Config holds scoring behavior configuration.
type Config struct {
	// ControlKey selects the strategy whose decision determines delivery.
	ControlKey string `koanf:"control_key"`

	// BaseThreshold is the default decision threshold.
	BaseThreshold float64 `koanf:"base_threshold"`

	// FavoriteOffset lowers the effective threshold for favorite authors.
	FavoriteOffset float64 `koanf:"favorite_offset"`

	// MutedOffset raises the effective threshold for muted authors.
	MutedOffset float64 `koanf:"muted_offset"`

	// Concurrency bounds the per-item fan-out so rate-limited external
	// services are not overwhelmed.
	Concurrency int `koanf:"concurrency"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ControlKey == "" {
		c.ControlKey = strategy.KeyBioRubric
	}
	if c.BaseThreshold == 0 {
		c.BaseThreshold = 70
	}
	if c.FavoriteOffset == 0 {
		c.FavoriteOffset = 20
	}
	if c.MutedOffset == 0 {
		c.MutedOffset = 15
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
}

// Experiment identifies an active scoring experiment. Read once per run
// and immutable for the run's duration; nil means no experiment.
type Experiment struct {
	ID            string
	ChallengerKey string
}

// PairRecorder persists one paired score per scored item per experiment.
type PairRecorder interface {
	RecordPair(ctx context.Context, pair store.ExperimentPair) error
}

// Decision is the scoring outcome for one item.
type Decision struct {
	Item               feed.Item
	ControlScore       float64
	ChallengerScore    *float64
	Send               bool
	EffectiveThreshold float64
	Tier               feed.Tier
	Duplicate          bool
	Reason             string
	Err                error
}

// Engine scores candidate batches.
type Engine struct {
	control    strategy.Strategy
	challenger strategy.Strategy
	experiment *Experiment
	judge      judge.Judge
	retrieval  *retrieval.Service
	store      *store.Store
	recorder   PairRecorder
	config     Config
	logger     *zap.Logger
}

// NewEngine resolves the configured strategies and wires the engine.
// Unknown strategy keys are configuration errors and fail construction,
// before any scoring happens.
func NewEngine(
	cfg Config,
	exp *Experiment,
	registry *strategy.Registry,
	j judge.Judge,
	rsvc *retrieval.Service,
	st *store.Store,
	recorder PairRecorder,
	logger *zap.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	control, err := registry.Get(cfg.ControlKey)
	if err != nil {
		return nil, fmt.Errorf("resolving control strategy: %w", err)
	}

	var challenger strategy.Strategy
	if exp != nil {
		challenger, err = registry.Get(exp.ChallengerKey)
		if err != nil {
			return nil, fmt.Errorf("resolving challenger strategy: %w", err)
		}
		if recorder == nil {
			return nil, fmt.Errorf("experiment %q active but no pair recorder wired", exp.ID)
		}
	}

	return &Engine{
		control:    control,
		challenger: challenger,
		experiment: exp,
		judge:      j,
		retrieval:  rsvc,
		store:      st,
		recorder:   recorder,
		config:     cfg,
		logger:     logger,
	}, nil
}

// ScoreBatch scores all items with bounded fan-out. Items are independent:
// a scoring failure is contained to its item, and cancellation leaves
// unfinished items unrecorded rather than half-written.
func (e *Engine) ScoreBatch(ctx context.Context, items []feed.Item) ([]Decision, error) {
	ctx, span := tracer.Start(ctx, "Engine.ScoreBatch")
	defer span.End()

	// Every batch pass gets its own id so log lines and spans from
	// concurrent items correlate to one run.
	runID := uuid.NewString()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("batch_size", len(items)),
	)
	logger := e.logger.With(zap.String("run_id", runID))

	if len(items) == 0 {
		return []Decision{}, nil
	}

	// First-wins claim table for in-batch reshare suppression.
	var mu sync.Mutex
	claimed := make(map[string]string, len(items))
	claim := func(fingerprint, itemID string) bool {
		mu.Lock()
		defer mu.Unlock()
		if owner, ok := claimed[fingerprint]; ok {
			return owner == itemID
		}
		claimed[fingerprint] = itemID
		return true
	}

	decisions := make([]Decision, len(items))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item feed.Item) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				decisions[i] = Decision{Item: item, Err: ctx.Err()}
				return
			}
			decisions[i] = e.scoreOne(ctx, item, claim)
		}(i, item)
	}
	wg.Wait()

	sent, failed := 0, 0
	for _, d := range decisions {
		switch {
		case d.Err != nil:
			failed++
		case d.Send:
			sent++
		}
	}
	span.SetAttributes(attribute.Int("sent", sent), attribute.Int("failed", failed))
	logger.Info("batch scored",
		zap.Int("items", len(items)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
	return decisions, nil
}

type invokeResult struct {
	score  float64
	reason string
	raw    string
	err    error
}

func (e *Engine) scoreOne(ctx context.Context, item feed.Item, claim func(fingerprint, itemID string) bool) Decision {
	ctx, span := tracer.Start(ctx, "Engine.scoreOne")
	defer span.End()
	span.SetAttributes(attribute.String("item_id", item.ID))

	start := time.Now()
	d := Decision{Item: item}

	if err := item.Validate(); err != nil {
		d.Err = err
		itemsTotal.WithLabelValues(resultFailed).Inc()
		return d
	}

	tier, err := e.store.Tier(ctx, item.Author)
	if err != nil {
		e.logger.Warn("tier lookup failed, using default",
			zap.String("author", item.Author), zap.Error(err))
		tier = feed.TierNormal
	}
	d.Tier = tier
	d.EffectiveThreshold = e.config.BaseThreshold + e.tierOffset(tier)

	// Build the context once and freeze it: control and challenger must
	// see the identical input or the paired comparison is invalid.
	var contextBlock string
	if e.control.WantsRetrieval() || (e.challenger != nil && e.challenger.WantsRetrieval()) {
		contextBlock, err = e.retrieval.ContextBlock(ctx, item.Text)
		if err != nil {
			e.logger.Warn("retrieval context unavailable, scoring without it",
				zap.String("item_id", item.ID), zap.Error(err))
			contextBlock = ""
		}
	}
	input := strategy.PromptInput{ItemsJSON: itemsJSON(item), Context: contextBlock}

	// Shadow-score concurrently with control: both calls are read-only
	// against the frozen input.
	var challengerCh chan invokeResult
	if e.challenger != nil {
		challengerCh = make(chan invokeResult, 1)
		go func() { challengerCh <- e.invoke(ctx, e.challenger, input, item.ID) }()
	}

	ctrl := e.invoke(ctx, e.control, input, item.ID)

	var shadow invokeResult
	if challengerCh != nil {
		shadow = <-challengerCh
	}

	if ctrl.err != nil {
		span.RecordError(ctrl.err)
		span.SetStatus(codes.Error, ctrl.err.Error())
		d.Err = fmt.Errorf("scoring item %s with %s: %w", item.ID, e.control.Key(), ctrl.err)
		itemsTotal.WithLabelValues(resultFailed).Inc()
		return d
	}
	d.ControlScore = ctrl.score
	d.Reason = ctrl.reason

	// Check the store before claiming: an in-batch loser can only persist
	// after losing the claim, so the claim winner's store check can never
	// observe a row written by its own batch twin.
	fingerprint := item.Fingerprint()
	seen, err := e.store.FingerprintSeen(ctx, fingerprint, item.ID)
	if err != nil {
		e.logger.Warn("fingerprint check failed, assuming new content",
			zap.String("item_id", item.ID), zap.Error(err))
		seen = false
	}
	duplicate := seen || !claim(fingerprint, item.ID)
	d.Duplicate = duplicate
	d.Send = e.control.Decide(ctrl.score, d.EffectiveThreshold) && !duplicate

	// All-or-nothing per item: nothing is persisted once the run is
	// cancelled, so no score record exists without its decision.
	if err := ctx.Err(); err != nil {
		d.Err = err
		return d
	}
	if err := e.persist(ctx, item, &d, ctrl, shadow); err != nil {
		d.Err = err
		itemsTotal.WithLabelValues(resultFailed).Inc()
		return d
	}

	itemsTotal.WithLabelValues(resultScored).Inc()
	scoringDuration.Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "success")

	e.logger.Debug("item scored",
		zap.String("item_id", item.ID),
		zap.String("author", item.Author),
		zap.String("tier", string(tier)),
		zap.Float64("score", ctrl.score),
		zap.Float64("threshold", d.EffectiveThreshold),
		zap.Bool("send", d.Send),
		zap.Bool("duplicate", duplicate),
	)
	return d
}

// persist writes the item, the control score record, and, when the
// challenger ran successfully, its record plus the experiment pair.
func (e *Engine) persist(ctx context.Context, item feed.Item, d *Decision, ctrl, shadow invokeResult) error {
	rec := &store.Item{
		ID:          item.ID,
		Author:      item.Author,
		AuthorName:  item.AuthorName,
		Text:        item.Text,
		Fingerprint: item.Fingerprint(),
		URL:         item.URL,
		Likes:       item.Metrics.Likes,
		Reposts:     item.Metrics.Reposts,
		Replies:     item.Metrics.Replies,
		PostedAt:    item.CreatedAt,
		Score:       &ctrl.score,
		ScoreReason: ctrl.reason,
		Delivered:   d.Send,
	}
	if err := e.store.SaveItem(ctx, rec); err != nil {
		return err
	}

	if err := e.store.SaveScoreRecord(ctx, &store.ScoreRecord{
		ItemID:      item.ID,
		StrategyKey: e.control.Key(),
		Score:       ctrl.score,
		RawOutput:   ctrl.raw,
	}); err != nil {
		return err
	}

	if e.challenger == nil {
		return nil
	}

	// The challenger is shadow-only: its failure never fails the item.
	if shadow.err != nil {
		e.logger.Warn("challenger scoring failed, pair not recorded",
			zap.String("item_id", item.ID),
			zap.String("strategy", e.challenger.Key()),
			zap.Error(shadow.err),
		)
		return nil
	}
	d.ChallengerScore = &shadow.score

	if err := e.store.SaveScoreRecord(ctx, &store.ScoreRecord{
		ItemID:      item.ID,
		StrategyKey: e.challenger.Key(),
		Score:       shadow.score,
		RawOutput:   shadow.raw,
	}); err != nil {
		return err
	}

	return e.recorder.RecordPair(ctx, store.ExperimentPair{
		ExperimentID:    e.experiment.ID,
		ItemID:          item.ID,
		ControlScore:    ctrl.score,
		ChallengerScore: shadow.score,
		ControlKey:      e.control.Key(),
		ChallengerKey:   e.challenger.Key(),
	})
}

// invoke renders the strategy prompt, calls the judge, and normalizes the
// response to this item's score.
func (e *Engine) invoke(ctx context.Context, s strategy.Strategy, input strategy.PromptInput, itemID string) invokeResult {
	prompt, err := s.Render(input)
	if err != nil {
		return invokeResult{err: fmt.Errorf("rendering %s: %w", s.Key(), err)}
	}

	res, err := e.judge.ScoreBatch(ctx, prompt)
	if err != nil {
		return invokeResult{err: err}
	}

	// res.Raw is the judge's verbatim response text; it is persisted as-is
	// so audits see what the judge said, not a re-serialization of it.
	for _, sc := range res.Scores {
		if sc.ItemID == itemID {
			return invokeResult{score: sc.Score, reason: sc.Reason, raw: res.Raw}
		}
	}
	// Single-score shape without an item id maps to the single item asked.
	if len(res.Scores) == 1 && res.Scores[0].ItemID == "" {
		return invokeResult{score: res.Scores[0].Score, reason: res.Scores[0].Reason, raw: res.Raw}
	}
	return invokeResult{err: fmt.Errorf("%w: %s", ErrItemNotScored, itemID)}
}

func (e *Engine) tierOffset(tier feed.Tier) float64 {
	switch tier {
	case feed.TierFavorite:
		return -e.config.FavoriteOffset
	case feed.TierMuted:
		return e.config.MutedOffset
	default:
		return 0
	}
}

// itemsJSON serializes the item as the single-entry batch the judge
// prompt embeds. Engagement metrics are passed through uninterpreted.
func itemsJSON(item feed.Item) string {
	type promptItem struct {
		ItemID  string `json:"item_id"`
		Author  string `json:"author"`
		Text    string `json:"text"`
		Quoted  string `json:"quoted_text,omitempty"`
		Likes   int    `json:"likes"`
		Reposts int    `json:"reposts"`
	}
	b, err := json.MarshalIndent([]promptItem{{
		ItemID:  item.ID,
		Author:  item.Author,
		Text:    item.Text,
		Quoted:  item.QuotedText,
		Likes:   item.Metrics.Likes,
		Reposts: item.Metrics.Reposts,
	}}, "", "  ")
	if err != nil {
		return fmt.Sprintf(`[{"item_id": %q}]`, item.ID)
	}
	return string(b)
}
