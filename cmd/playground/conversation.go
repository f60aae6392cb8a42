package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/playground/pkg/conversations"
	"github.com/jingkaihe/playground/pkg/presenter"
	convtypes "github.com/jingkaihe/playground/pkg/types/conversations"
)

// ConversationListConfig holds configuration for the conversation list command
type ConversationListConfig struct {
	JSONOutput bool
}

// NewConversationListConfig creates a new ConversationListConfig with default values
func NewConversationListConfig() *ConversationListConfig {
	return &ConversationListConfig{JSONOutput: false}
}

// ConversationShowConfig holds configuration for the conversation show command
type ConversationShowConfig struct {
	Format string
}

// NewConversationShowConfig creates a new ConversationShowConfig with default values
func NewConversationShowConfig() *ConversationShowConfig {
	return &ConversationShowConfig{Format: "text"}
}

// conversationReader is the part of the store the conversation commands read
type conversationReader interface {
	GetConversation(ctx context.Context, id int64, ownerKey string) (convtypes.Conversation, error)
	ListConversations(ctx context.Context, ownerKey string) ([]convtypes.ConversationListing, error)
	ListMessages(ctx context.Context, conversationID int64) ([]convtypes.Message, error)
}

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect saved conversations",
	Long:    `Commands for inspecting the conversations saved for your API key.`,
}

var conversationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations",
	Long:  `Lists the conversations saved for your API key, least recently active first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := getConversationListConfigFromFlags(cmd)
		return withConvergedApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return listConversations(ctx, a.store, a.apiKey, config, os.Stdout, presenter.Default())
		})
	},
}

var conversationShowCmd = &cobra.Command{
	Use:   "show [conversationID]",
	Short: "Show the messages of a conversation",
	Long:  `Shows every stored message of one of your conversations.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id < 1 {
			return errors.Errorf("invalid conversation id %q", args[0])
		}
		config := getConversationShowConfigFromFlags(cmd)
		return withConvergedApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return showConversation(ctx, a.store, a.apiKey, id, config, os.Stdout, presenter.Default())
		})
	},
}

func init() {
	listDefaults := NewConversationListConfig()
	conversationListCmd.Flags().Bool("json", listDefaults.JSONOutput, "Output in JSON format")

	showDefaults := NewConversationShowConfig()
	conversationShowCmd.Flags().String("format", showDefaults.Format, "Output format: text or json")

	conversationCmd.AddCommand(withTracing(conversationListCmd))
	conversationCmd.AddCommand(withTracing(conversationShowCmd))
}

func getConversationListConfigFromFlags(cmd *cobra.Command) *ConversationListConfig {
	config := NewConversationListConfig()
	if jsonOutput, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSONOutput = jsonOutput
	}
	return config
}

func getConversationShowConfigFromFlags(cmd *cobra.Command) *ConversationShowConfig {
	config := NewConversationShowConfig()
	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	return config
}

// withConvergedApp opens the database for the current key, converges it and runs f
func withConvergedApp(ctx context.Context, f func(ctx context.Context, a *app) error) error {
	a, err := openApp(ctx, cfg, appOptions{requireKey: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.Converge(ctx); err != nil {
		return errors.Wrap(err, "failed to prepare database")
	}
	return f(ctx, a)
}

func listConversations(ctx context.Context, store conversationReader, ownerKey string, config *ConversationListConfig, out io.Writer, p presenter.Presenter) error {
	listings, err := store.ListConversations(ctx, ownerKey)
	if err != nil {
		return err
	}

	if config.JSONOutput {
		return writeJSON(out, listings)
	}
	p.Listing(listings)
	return nil
}

type conversationOutput struct {
	convtypes.Conversation
	Messages []convtypes.Message `json:"messages"`
}

func showConversation(ctx context.Context, store conversationReader, ownerKey string, id int64, config *ConversationShowConfig, out io.Writer, p presenter.Presenter) error {
	conv, err := store.GetConversation(ctx, id, ownerKey)
	if err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return errors.Errorf("no such conversation: %d", id)
		}
		return err
	}

	messages, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		return err
	}

	switch config.Format {
	case "json":
		return writeJSON(out, conversationOutput{Conversation: conv, Messages: messages})
	case "text":
		p.Section(fmt.Sprintf("%d: %s", conv.ID, conv.Title))
		for _, m := range messages {
			p.Message(m.Role, m.Content)
			p.Separator()
		}
		return nil
	default:
		return errors.Errorf("unknown format %q, expected text or json", config.Format)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	return nil
}
