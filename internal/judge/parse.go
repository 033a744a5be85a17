package judge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// fallbackPattern recovers individual score objects from responses that
// are not valid JSON as a whole (truncated arrays, stray prose).
var fallbackPattern = regexp.MustCompile(`\{\s*"item_id"\s*:\s*"([^"]+)"\s*,\s*"score"\s*:\s*(\d+(?:\.\d+)?)\s*(?:,\s*"reason"\s*:\s*"([^"]*)")?\s*\}`)

// ParseScores normalizes a raw judge response to item scores.
//
// Handled shapes, in order:
//   - a JSON array of {item_id, score, reason} objects
//   - a single such object
//   - a bare number (single-item prompts); ItemID is left empty
//
// Markdown code fences around the JSON are stripped. Scores outside
// [0, 100] and entries without an item id (other than the bare-number
// shape) are rejected as unparseable rather than clamped.
func ParseScores(raw string) ([]ItemScore, error) {
	text := stripFences(strings.TrimSpace(raw))

	var list []ItemScore
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return validateScores(list, raw)
	}

	var single ItemScore
	if err := json.Unmarshal([]byte(text), &single); err == nil && (single.ItemID != "" || single.Score != 0) {
		return validateScores([]ItemScore{single}, raw)
	}

	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return validateScores([]ItemScore{{Score: n}}, raw)
	}

	return fallbackParse(raw)
}

func validateScores(scores []ItemScore, raw string) ([]ItemScore, error) {
	valid := make([]ItemScore, 0, len(scores))
	for _, s := range scores {
		if s.Score < 0 || s.Score > 100 {
			return nil, fmt.Errorf("%w: score %.1f out of range", ErrUnparseable, s.Score)
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return fallbackParse(raw)
	}
	return valid, nil
}

// fallbackParse scans for score objects embedded in otherwise malformed
// output. Returns ErrUnparseable when nothing is recoverable.
func fallbackParse(raw string) ([]ItemScore, error) {
	matches := fallbackPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil, ErrUnparseable
	}

	scores := make([]ItemScore, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.ParseFloat(m[2], 64)
		if err != nil || n < 0 || n > 100 {
			continue
		}
		scores = append(scores, ItemScore{ItemID: m[1], Score: n, Reason: m[3]})
	}
	if len(scores) == 0 {
		return nil, ErrUnparseable
	}
	return scores, nil
}

// stripFences removes a surrounding markdown code block, if present.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
