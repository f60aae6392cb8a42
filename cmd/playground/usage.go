package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
	"github.com/jingkaihe/playground/pkg/usage"
)

// UsageConfig holds configuration for the usage command
type UsageConfig struct {
	Since  string
	Until  string
	Format string
}

// NewUsageConfig creates a new UsageConfig with default values
func NewUsageConfig() *UsageConfig {
	return &UsageConfig{
		Since:  "10d",
		Format: "table",
	}
}

type usageReader interface {
	ListUsage(ctx context.Context, ownerKey string) ([]convtypes.UsageRecord, error)
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage statistics",
	Long: `Show the prompt and completion tokens spent by your conversations, broken down by day.

By default shows usage for the past 10 days.

Examples:
  playground usage                               # Past 10 days
  playground usage --since 2024-05-01            # Since a specific date
  playground usage --since 1w --until 2024-05-08 # Date range
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getUsageConfigFromFlags(cmd)
		return withConvergedApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return runUsage(ctx, a.store, a.apiKey, config, time.Now, os.Stdout)
		})
	},
}

func init() {
	defaults := NewUsageConfig()
	usageCmd.Flags().String("since", defaults.Since, "Show usage since this time (e.g., 2024-05-01, 1d, 1w)")
	usageCmd.Flags().String("until", defaults.Until, "Show usage until this time (e.g., 2024-05-08)")
	usageCmd.Flags().String("format", defaults.Format, "Output format: table or json")
}

func getUsageConfigFromFlags(cmd *cobra.Command) *UsageConfig {
	config := NewUsageConfig()
	if since, err := cmd.Flags().GetString("since"); err == nil {
		config.Since = since
	}
	if until, err := cmd.Flags().GetString("until"); err == nil {
		config.Until = until
	}
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	return config
}

var relativeTimeSpec = regexp.MustCompile(`^(\d+)([dhw])$`)

// parseTimeSpec accepts YYYY-MM-DD or a relative spec such as 3d, 12h or 2w
func parseTimeSpec(spec string, now func() time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse("2006-01-02", spec); err == nil {
		return t, nil
	}

	matches := relativeTimeSpec.FindStringSubmatch(spec)
	if len(matches) != 3 {
		return time.Time{}, errors.Errorf("invalid time specification: %s (expected format: YYYY-MM-DD, 1d, 1w, etc.)", spec)
	}

	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return time.Time{}, errors.Errorf("invalid number in time specification: %s", matches[1])
	}

	switch matches[2] {
	case "d":
		return now().AddDate(0, 0, -amount), nil
	case "h":
		return now().Add(-time.Duration(amount) * time.Hour), nil
	default:
		return now().AddDate(0, 0, -amount*7), nil
	}
}

func runUsage(ctx context.Context, reader usageReader, ownerKey string, config *UsageConfig, now func() time.Time, out io.Writer) error {
	if config.Format != "table" && config.Format != "json" {
		return errors.Errorf("unknown format %q (supported: table, json)", config.Format)
	}

	startTime, err := parseTimeSpec(config.Since, now)
	if err != nil {
		return errors.Wrap(err, "invalid --since")
	}
	if !startTime.IsZero() {
		startTime = startTime.UTC().Truncate(24 * time.Hour)
	}

	endTime, err := parseTimeSpec(config.Until, now)
	if err != nil {
		return errors.Wrap(err, "invalid --until")
	}
	if !endTime.IsZero() {
		endTime = endTime.UTC().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second)
	}

	records, err := reader.ListUsage(ctx, ownerKey)
	if err != nil {
		return err
	}
	stats := usage.CalculateUsageStats(records, startTime, endTime)

	if config.Format == "json" {
		return writeJSON(out, stats)
	}
	return writeUsageTable(out, stats)
}

func writeUsageTable(out io.Writer, stats *usage.UsageStats) error {
	if len(stats.Daily) == 0 {
		_, err := fmt.Fprintln(out, "No usage recorded in this period.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Date\tConversations\tReplies\tPrompt\tCompletion\tTotal\t")
	for _, day := range stats.Daily {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t\n",
			day.Date.Format("2006-01-02"),
			day.Conversations,
			day.Replies,
			usage.FormatNumber(day.Tokens.PromptTokens),
			usage.FormatNumber(day.Tokens.CompletionTokens),
			usage.FormatNumber(day.Tokens.Total()))
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%s\t%s\t%s\t\n",
		stats.TotalConversations,
		stats.TotalReplies,
		usage.FormatNumber(stats.Total.PromptTokens),
		usage.FormatNumber(stats.Total.CompletionTokens),
		usage.FormatNumber(stats.Total.Total()))
	return w.Flush()
}
