package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messagesResponse(text string) string {
	body, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return string(body)
}

func newTestJudge(t *testing.T, handler http.HandlerFunc) *AnthropicJudge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	j, err := NewAnthropicJudge(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, nil)
	require.NoError(t, err)
	return j
}

func TestScoreBatchParsesResponse(t *testing.T) {
	var gotAuth atomic.Value
	j := newTestJudge(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("X-API-Key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-sonnet-4-20250514", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "score this")

		fmt.Fprint(w, messagesResponse(`[{"item_id": "42", "score": 88, "reason": "on topic"}]`))
	})

	res, err := j.ScoreBatch(context.Background(), "score this")
	require.NoError(t, err)
	require.Len(t, res.Scores, 1)
	assert.Equal(t, "42", res.Scores[0].ItemID)
	assert.Equal(t, 88.0, res.Scores[0].Score)
	assert.Equal(t, `[{"item_id": "42", "score": 88, "reason": "on topic"}]`, res.Raw,
		"result must carry the verbatim response text")
	assert.Equal(t, "test-key", gotAuth.Load())
}

func TestScoreBatchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	j := newTestJudge(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "max_tokens too large"}}`)
	})

	_, err := j.ScoreBatch(context.Background(), "score this")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens too large")
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestScoreBatchEmptyContent(t *testing.T) {
	j := newTestJudge(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": []}`)
	})

	_, err := j.ScoreBatch(context.Background(), "score this")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestRetryableErrorClassification(t *testing.T) {
	assert.True(t, isRetryableError(&retryableError{err: errors.New("rate limited (429)")}))
	assert.True(t, isRetryableError(fmt.Errorf("wrapped: %w", &retryableError{err: errors.New("boom")})))
	assert.False(t, isRetryableError(errors.New("bad request")))
}
