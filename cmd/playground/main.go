package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/playground/pkg/chat"
	"github.com/jingkaihe/playground/pkg/config"
	"github.com/jingkaihe/playground/pkg/logger"
	"github.com/jingkaihe/playground/pkg/presenter"
)

// cfg is the effective configuration, loaded before any command runs
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "playground",
	Short: "A terminal-based client that calls the ChatGPT API to generate answers",
	Long: `playground is a terminal chat client for the ChatGPT API.

Conversations are kept in a local SQLite database and resumed by number; each
request carries as much recent history as the configured limits allow.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(viper.GetViper()); err != nil {
			return err
		}
		return initTracing(cmd.Context())
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd.Context(), chatPlain)
	},
}

func loadConfig(v *viper.Viper) error {
	if err := config.Init(v); err != nil {
		return err
	}
	loaded, err := config.Load(v)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if err := logger.Configure(loaded.LogLevel, loaded.LogFormat, nil); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("key", "k", "", "Supply API key directly")
	flags.StringP("key-file", "f", config.DefaultKeyFile, "Read API key from file; a leading $ means next to the executable")
	flags.StringP("database", "d", config.DefaultDatabase, "Conversation database; a leading $ means next to the executable")
	flags.String("model", "", "Chat model to use (overrides config)")
	flags.String("base-url", "", "Base URL of an OpenAI compatible API")
	flags.StringP("proxy", "p", "", `Proxy address, for example: "socks5://127.0.0.1:1080"`)
	flags.Int("max-token", 0, "Token budget of the history sent with a prompt (overrides config)")
	flags.Int("max-dialog", 0, "Number of history messages sent with a prompt (overrides config)")
	flags.Duration("timeout", 0, "Timeout of a completion request, 0 for none")
	flags.String("profile", "", "Configuration profile to apply")
	flags.String("log-level", "", "Log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "", "Log format (fmt, json)")

	for key, flag := range map[string]string{
		"key":        "key",
		"key_file":   "key-file",
		"database":   "database",
		"model":      "model",
		"base_url":   "base-url",
		"proxy":      "proxy",
		"max_token":  "max-token",
		"max_dialog": "max-dialog",
		"timeout":    "timeout",
		"profile":    "profile",
		"log_level":  "log-level",
		"log_format": "log-format",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.Flags().BoolVar(&chatPlain, "plain", false, "Use the line-oriented interface instead of the full screen one")

	rootCmd.AddCommand(withTracing(chatCmd))
	rootCmd.AddCommand(conversationCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(withTracing(usageCmd))
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	shutdownTracing()

	if err != nil {
		if errors.Is(err, chat.ErrMissingAPIKey) {
			fmt.Println("Please provide an API Key. See -h for more details.")
		} else {
			presenter.Error(err, "")
		}
		os.Exit(1)
	}
}
