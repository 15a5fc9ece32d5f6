// Package cli is the edmo-emotion command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/observe"
)

// app is the state shared by subcommands once flags are parsed.
type app struct {
	cfg     *config.Root
	log     *logrus.Logger
	metrics *observe.Metrics

	reader   *sdkmetric.ManualReader
	shutdown func(context.Context) error
}

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, a := newRoot()
	err := root.ExecuteContext(ctx)
	if cerr := a.close(context.Background()); err == nil {
		err = cerr
	}
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRoot returns the root command with all subcommands attached.
func NewRoot() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "edmo-emotion",
		Short:         "Predict the emotion expressed in short video clips",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default: config/$CONFIG_ENV/config.yaml)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("fusion-url", "", "Fusion classifier base URL")
	pf.String("encoder-url", "", "Text encoder base URL")
	pf.String("asr-url", "", "Speech recognition service base URL")
	pf.String("offline-engine", "", "Offline speech engine: whisper, whisper-cli or none")
	pf.String("offline-model", "", "Offline speech model path")
	pf.StringSlice("online", nil, "Online speech engines in fallback order (asr, openai)")
	pf.String("projection-mode", "", "Projection mode: fixed or per_call")
	pf.Uint64("projection-seed", 0, "Seed for fixed projection matrices")
	pf.Int("num-classes", 0, "Expected classifier output width")
	pf.Int("max-concurrent", 0, "Concurrent model calls across requests")
	pf.Float64("skew-threshold", 0, "Binary skew correction threshold")
	pf.String("temp-dir", "", "Directory for per-request scratch files")
	pf.String("outputs", "", "Directory receiving batch session reports")
	pf.String("ffmpeg", "", "ffmpeg binary")
	pf.String("ffprobe", "", "ffprobe binary")
	pf.Bool("metrics", false, "Log collected metrics before exiting")

	// Credentials come from EDMO_OPENAI_API_KEY or the config file.
	pf.String("openai-api-key", "", "")
	pf.String("openai-base-url", "", "")
	_ = pf.MarkHidden("openai-api-key")
	_ = pf.MarkHidden("openai-base-url")

	root.AddCommand(newPredictCmd(a), newBatchCmd(a), newProbeCmd(a))
	return root, a
}

func (a *app) init(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	v := config.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg.Apply(v)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	a.log = observe.NewLogger(cmd.ErrOrStderr(), cfg.Pipeline.LogLvl, cfg.Pipeline.LogFormat)

	if on, _ := cmd.Flags().GetBool("metrics"); on {
		mp, reader := observe.NewManualProvider()
		a.reader, a.shutdown = reader, mp.Shutdown
		a.metrics, err = observe.NewMetrics(mp)
	} else {
		a.metrics = observe.DefaultMetrics()
	}
	return err
}

func (a *app) close(ctx context.Context) error {
	if a.reader == nil {
		return nil
	}
	if err := observe.Dump(ctx, a.reader, a.log.WithField("component", "metrics")); err != nil {
		return err
	}
	return a.shutdown(ctx)
}
