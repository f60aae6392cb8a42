package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
	"github.com/jingkaihe/playground/pkg/usage"
)

type fakeUsageReader struct {
	records []convtypes.UsageRecord
	err     error
	key     string
}

func (f *fakeUsageReader) ListUsage(_ context.Context, ownerKey string) ([]convtypes.UsageRecord, error) {
	f.key = ownerKey
	return f.records, f.err
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
}

func TestParseTimeSpec(t *testing.T) {
	tests := []struct {
		spec string
		want time.Time
	}{
		{"", time.Time{}},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"3d", time.Date(2024, 5, 7, 15, 0, 0, 0, time.UTC)},
		{"12h", time.Date(2024, 5, 10, 3, 0, 0, 0, time.UTC)},
		{"1w", time.Date(2024, 5, 3, 15, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseTimeSpec(tt.spec, fixedClock)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	for _, bad := range []string{"yesterday", "3m", "d"} {
		_, err := parseTimeSpec(bad, fixedClock)
		assert.Error(t, err, bad)
	}
}

func TestRunUsage(t *testing.T) {
	reader := &fakeUsageReader{records: []convtypes.UsageRecord{
		{ConversationID: 1, PromptTokens: 900, CompletionTokens: 300, At: time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC)},
		{ConversationID: 2, PromptTokens: 5, CompletionTokens: 7, At: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)},
		{ConversationID: 3, PromptTokens: 1, CompletionTokens: 1, At: time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)},
	}}

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runUsage(context.Background(), reader, "k1", NewUsageConfig(), fixedClock, &out))

		assert.Equal(t, "k1", reader.key)
		assert.Contains(t, out.String(), "2024-05-10")
		assert.Contains(t, out.String(), "2024-05-09")
		assert.Contains(t, out.String(), "1,200")
		assert.Contains(t, out.String(), "1,212")
		assert.NotContains(t, out.String(), "2024-04-01")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		config := &UsageConfig{Since: "2024-05-10", Format: "json"}
		require.NoError(t, runUsage(context.Background(), reader, "k1", config, fixedClock, &out))

		var stats usage.UsageStats
		require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
		require.Len(t, stats.Daily, 1)
		assert.Equal(t, int64(12), stats.Total.Total())
		assert.Equal(t, 1, stats.TotalConversations)
	})

	t.Run("empty period", func(t *testing.T) {
		var out bytes.Buffer
		config := &UsageConfig{Since: "2024-06-01", Format: "table"}
		require.NoError(t, runUsage(context.Background(), reader, "k1", config, fixedClock, &out))
		assert.Equal(t, "No usage recorded in this period.\n", out.String())
	})

	t.Run("bad input", func(t *testing.T) {
		assert.Error(t, runUsage(context.Background(), reader, "k1",
			&UsageConfig{Format: "csv"}, fixedClock, &bytes.Buffer{}))
		assert.Error(t, runUsage(context.Background(), reader, "k1",
			&UsageConfig{Since: "soon", Format: "table"}, fixedClock, &bytes.Buffer{}))
	})

	t.Run("store failure", func(t *testing.T) {
		failing := &fakeUsageReader{err: errors.New("disk I/O error")}
		err := runUsage(context.Background(), failing, "k1", NewUsageConfig(), fixedClock, &bytes.Buffer{})
		assert.ErrorContains(t, err, "disk I/O error")
	})
}
