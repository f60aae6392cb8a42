package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jingkaihe/playground/pkg/logger"
	"github.com/jingkaihe/playground/pkg/telemetry"
	"github.com/jingkaihe/playground/pkg/version"
)

var (
	tracer = telemetry.Tracer("playground.cli")

	tracingShutdown func(context.Context) error
)

// sensitiveFlags are never recorded as span attributes
var sensitiveFlags = map[string]bool{"key": true}

// initTracing initializes the OpenTelemetry tracing system
func initTracing(ctx context.Context) error {
	tc := cfg.Tracing
	tc.ServiceName = "playground"
	tc.ServiceVersion = version.Get().Version

	shutdown, err := telemetry.InitTracer(ctx, tc)
	if err != nil {
		return err
	}
	tracingShutdown = shutdown
	return nil
}

// shutdownTracing flushes pending spans
func shutdownTracing() {
	if tracingShutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracingShutdown(ctx); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to shut down tracing")
	}
}

// withTracing wraps a Cobra command with tracing
func withTracing(cmd *cobra.Command) *cobra.Command {
	originalRunE := cmd.RunE

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		attrs := []attribute.KeyValue{
			attribute.String("command.name", cmd.Name()),
			attribute.String("command.path", cmd.CommandPath()),
			attribute.Int("args.count", len(args)),
		}

		cmd.Flags().Visit(func(flag *pflag.Flag) {
			if !sensitiveFlags[flag.Name] {
				attrs = append(attrs, attribute.String("flag."+flag.Name, flag.Value.String()))
			}
		})

		ctx, span := tracer.Start(cmd.Context(), "cli.command", trace.WithAttributes(attrs...))
		defer span.End()

		cmd.SetContext(ctx)

		err := originalRunE(cmd, args)
		telemetry.RecordResult(span, err)
		return err
	}

	return cmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	flags.String("tracing-sampler", "ratio", "Tracing sampler type (always, never, ratio)")
	flags.Float64("tracing-ratio", 1, "Sampling ratio when using ratio sampler")

	for key, flag := range map[string]string{
		"tracing.enabled": "tracing-enabled",
		"tracing.sampler": "tracing-sampler",
		"tracing.ratio":   "tracing-ratio",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
