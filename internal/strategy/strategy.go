// Package strategy defines scoring strategies and the process-wide registry.
//
// A strategy is a prompt template plus a decision rule. The scoring engine
// is strategy-agnostic: adding a strategy means registering it here, not
// touching the engine.
package strategy

import (
	"errors"
	"fmt"
	"strings"
)

// Errors for strategy lookup and rendering.
var (
	// ErrUnknownStrategy means a configured strategy key has no registry
	// entry. This is a fatal configuration error and must abort the run
	// before any scoring happens.
	ErrUnknownStrategy = errors.New("unknown strategy key")

	ErrEmptyBatch = errors.New("prompt input has no items")
)

// PromptInput is the frozen context a strategy renders against. When an
// experiment is active, the control and challenger strategies receive the
// identical PromptInput so the paired comparison stays valid.
type PromptInput struct {
	// ItemsJSON is the candidate batch serialized for the judge.
	ItemsJSON string

	// Context is the retrieved-context block built from similar voted
	// items. Empty means no retrieval configured or nothing found; a
	// strategy that does not use retrieval ignores it.
	Context string
}

// Strategy renders judge prompts and turns scores into send decisions.
type Strategy interface {
	// Key is the stable identifier used in configuration and records.
	Key() string

	// Render produces the judge prompt for the given frozen input.
	Render(in PromptInput) (string, error)

	// Decide maps a parsed score and an effective threshold to a send
	// outcome.
	Decide(score, threshold float64) bool

	// WantsRetrieval reports whether the template consumes the
	// retrieved-context block.
	WantsRetrieval() bool
}

// Registry maps strategy keys to strategies. Constructed once at startup
// and passed explicitly into components. Pure lookup, no state.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds a registry from the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	m := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.Key()] = s
	}
	return &Registry{strategies: m}
}

// Builtin returns a registry with all built-in strategies.
func Builtin() *Registry {
	return NewRegistry(
		promptStrategy{key: KeyBioRubric, template: promptBioRubric},
		promptStrategy{key: KeyBioRubricRAG, template: promptBioRubricRAG, retrieval: true},
		promptStrategy{key: KeyInterestsOnly, template: promptInterestsOnly},
		promptStrategy{key: KeyBinary, template: promptBinary, bimodalFloor: binaryPassFloor},
		promptStrategy{key: KeyNegativeFirst, template: promptNegativeFirst},
	)
}

// Get returns the strategy for key, or ErrUnknownStrategy.
func (r *Registry) Get(key string) (Strategy, error) {
	s, ok := r.strategies[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, key)
	}
	return s, nil
}

// Keys returns all registered strategy keys.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	return keys
}

// promptStrategy is a template-backed strategy. Templates use the
// {items_json} and {context} placeholders.
type promptStrategy struct {
	key          string
	template     string
	retrieval    bool
	bimodalFloor float64
}

func (s promptStrategy) Key() string          { return s.key }
func (s promptStrategy) WantsRetrieval() bool { return s.retrieval }

func (s promptStrategy) Render(in PromptInput) (string, error) {
	if strings.TrimSpace(in.ItemsJSON) == "" {
		return "", ErrEmptyBatch
	}
	ctx := in.Context
	if ctx == "" {
		ctx = noContextBlock
	}
	return strings.NewReplacer(
		"{items_json}", in.ItemsJSON,
		"{context}", ctx,
	).Replace(s.template), nil
}

// Decide applies a monotonic threshold rule. Strategies with a bimodal
// floor (the binary prompt) additionally skip the ambiguous middle band:
// the prompt forces scores out of 50-69, so anything under the floor is
// a skip no matter how low the effective threshold is.
func (s promptStrategy) Decide(score, threshold float64) bool {
	if score < threshold {
		return false
	}
	if s.bimodalFloor > 0 && score < s.bimodalFloor {
		return false
	}
	return true
}
