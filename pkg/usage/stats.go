// Package usage aggregates the token accounting stored with replies into
// daily statistics and logs per-request usage of the completion API.
package usage

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jingkaihe/playground/pkg/logger"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// Tokens is a prompt/completion token pair
type Tokens struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

// Total returns the sum of prompt and completion tokens
func (t Tokens) Total() int64 {
	return t.PromptTokens + t.CompletionTokens
}

func (t *Tokens) add(r convtypes.UsageRecord) {
	t.PromptTokens += r.PromptTokens
	t.CompletionTokens += r.CompletionTokens
}

// DailyUsage represents usage statistics for a single day
type DailyUsage struct {
	Date          time.Time `json:"date"`
	Tokens        Tokens    `json:"tokens"`
	Replies       int       `json:"replies"`
	Conversations int       `json:"conversations"`
}

// UsageStats represents aggregated usage statistics with daily breakdown and totals
type UsageStats struct {
	Daily              []DailyUsage `json:"daily"`
	Total              Tokens       `json:"total"`
	TotalReplies       int          `json:"totalReplies"`
	TotalConversations int          `json:"totalConversations"`
}

// CalculateUsageStats aggregates records within [startTime, endTime] by UTC day,
// newest day first. A zero bound is open.
func CalculateUsageStats(records []convtypes.UsageRecord, startTime, endTime time.Time) *UsageStats {
	type bucket struct {
		daily DailyUsage
		seen  map[int64]struct{}
	}

	buckets := make(map[string]*bucket)
	allConversations := make(map[int64]struct{})
	stats := &UsageStats{}

	for _, record := range records {
		at := record.At.UTC()
		if !startTime.IsZero() && at.Before(startTime) {
			continue
		}
		if !endTime.IsZero() && at.After(endTime) {
			continue
		}

		date := at.Truncate(24 * time.Hour)
		key := date.Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{daily: DailyUsage{Date: date}, seen: make(map[int64]struct{})}
			buckets[key] = b
		}

		b.daily.Tokens.add(record)
		b.daily.Replies++
		if _, dup := b.seen[record.ConversationID]; !dup {
			b.seen[record.ConversationID] = struct{}{}
			b.daily.Conversations++
		}

		stats.Total.add(record)
		stats.TotalReplies++
		allConversations[record.ConversationID] = struct{}{}
	}
	stats.TotalConversations = len(allConversations)

	stats.Daily = make([]DailyUsage, 0, len(buckets))
	for _, b := range buckets {
		stats.Daily = append(stats.Daily, b.daily)
	}
	sort.Slice(stats.Daily, func(i, j int) bool {
		return stats.Daily[i].Date.After(stats.Daily[j].Date)
	})

	return stats
}

// FormatNumber formats large numbers with commas for readability
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	str := strconv.FormatInt(n, 10)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return result.String()
}

func roundToFourDecimalPlaces(value float64) float64 {
	return math.Round(value*10000) / 10000
}

// LogCompletionUsage logs the token usage and throughput of one completion request
func LogCompletionUsage(ctx context.Context, model string, promptTokens, completionTokens int64, startTime time.Time) {
	duration := time.Since(startTime)
	fields := map[string]any{
		"model":             model,
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
		"total_tokens":      promptTokens + completionTokens,
		"duration":          duration,
	}

	if duration > 0 && completionTokens > 0 {
		fields["completion_tokens/s"] = roundToFourDecimalPlaces(float64(completionTokens) / duration.Seconds())
	}

	logger.G(ctx).WithFields(fields).Info("completion usage")
}
