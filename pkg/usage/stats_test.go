package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/playground/pkg/logger"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

func setupTestLogger(level logrus.Level) (*bytes.Buffer, context.Context) {
	var buf bytes.Buffer
	testLogger := logrus.New()
	testLogger.SetOutput(&buf)
	testLogger.SetLevel(level)
	testLogger.Formatter = &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}

	return &buf, logger.WithLogger(context.Background(), logrus.NewEntry(testLogger))
}

func record(conversationID int64, at string, prompt, completion int64) convtypes.UsageRecord {
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	return convtypes.UsageRecord{
		ConversationID:   conversationID,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		At:               ts,
	}
}

func TestCalculateUsageStats(t *testing.T) {
	records := []convtypes.UsageRecord{
		record(1, "2024-05-06T07:00:00Z", 5, 7),
		record(1, "2024-05-06T09:00:00Z", 10, 3),
		record(2, "2024-05-06T23:59:00Z", 1, 1),
		record(2, "2024-05-08T01:00:00Z", 20, 30),
	}

	stats := CalculateUsageStats(records, time.Time{}, time.Time{})

	require.Len(t, stats.Daily, 2)
	assert.Equal(t, "2024-05-08", stats.Daily[0].Date.Format("2006-01-02"))
	assert.Equal(t, Tokens{PromptTokens: 20, CompletionTokens: 30}, stats.Daily[0].Tokens)
	assert.Equal(t, 1, stats.Daily[0].Conversations)

	assert.Equal(t, "2024-05-06", stats.Daily[1].Date.Format("2006-01-02"))
	assert.Equal(t, Tokens{PromptTokens: 16, CompletionTokens: 11}, stats.Daily[1].Tokens)
	assert.Equal(t, 3, stats.Daily[1].Replies)
	assert.Equal(t, 2, stats.Daily[1].Conversations)

	assert.Equal(t, int64(77), stats.Total.Total())
	assert.Equal(t, 4, stats.TotalReplies)
	assert.Equal(t, 2, stats.TotalConversations)
}

func TestCalculateUsageStats_TimeRange(t *testing.T) {
	records := []convtypes.UsageRecord{
		record(1, "2024-05-01T10:00:00Z", 100, 100),
		record(2, "2024-05-06T10:00:00Z", 5, 7),
		record(3, "2024-05-09T10:00:00Z", 100, 100),
	}

	start := time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	stats := CalculateUsageStats(records, start, end)

	require.Len(t, stats.Daily, 1)
	assert.Equal(t, int64(12), stats.Total.Total())
	assert.Equal(t, 1, stats.TotalConversations)
}

func TestCalculateUsageStats_Empty(t *testing.T) {
	stats := CalculateUsageStats(nil, time.Time{}, time.Time{})
	assert.Empty(t, stats.Daily)
	assert.Zero(t, stats.Total.Total())
	assert.Zero(t, stats.TotalConversations)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-45000, "-45,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.in))
	}
}

func TestLogCompletionUsage(t *testing.T) {
	buf, ctx := setupTestLogger(logrus.InfoLevel)

	LogCompletionUsage(ctx, "gpt-3.5-turbo", 5, 7, time.Now().Add(-time.Second))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "completion usage", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "gpt-3.5-turbo", entry["model"])
	assert.Equal(t, float64(5), entry["prompt_tokens"])
	assert.Equal(t, float64(7), entry["completion_tokens"])
	assert.Equal(t, float64(12), entry["total_tokens"])

	rate, ok := entry["completion_tokens/s"].(float64)
	require.True(t, ok)
	assert.Greater(t, rate, 0.0)
	assert.LessOrEqual(t, rate, 7.0)
}

func TestLogCompletionUsage_NoCompletionTokens(t *testing.T) {
	buf, ctx := setupTestLogger(logrus.InfoLevel)

	LogCompletionUsage(ctx, "gpt-4", 5, 0, time.Now())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "completion_tokens/s")
}

func TestLogCompletionUsage_BelowLevel(t *testing.T) {
	buf, ctx := setupTestLogger(logrus.WarnLevel)

	LogCompletionUsage(ctx, "gpt-4", 5, 7, time.Now())

	assert.Empty(t, buf.String())
}
