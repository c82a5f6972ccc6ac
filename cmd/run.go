package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CS-5/VoiceTimeBot/bot"
	"github.com/CS-5/VoiceTimeBot/config"
	"github.com/CS-5/VoiceTimeBot/ledger"
	"github.com/CS-5/VoiceTimeBot/metrics"
)

func newRunCmd() *cobra.Command {
	var configFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the voice channel and start tracking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv()

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./voicetime.{toml,yaml,json} when present)")
	flags.String("guild", "", "Guild ID (GUILD_ID)")
	flags.String("channel", "", "Voice channel ID to monitor (VOICE_CHANNEL_ID)")
	flags.String("welcome-channel", "", "Text channel for greetings (WELCOME_CHANNEL_ID)")
	flags.String("data-file", "", "Where totals are stored (DATA_FILE)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090 (METRICS_ADDR)")

	for key, flag := range map[string]string{
		config.KeyGuildID:          "guild",
		config.KeyVoiceChannelID:   "channel",
		config.KeyWelcomeChannelID: "welcome-channel",
		config.KeyDataFile:         "data-file",
		config.KeyMetricsAddr:      "metrics-addr",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

// runBot runs the tracker until ctx is cancelled. Totals are saved on every
// way out once the ledger exists.
func runBot(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	store := ledger.NewFileStore(cfg.DataFile)
	l := ledger.New(store, ledger.WithObserver(m))
	log.Printf("Voice time file: %s", store.Path())

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic: %v, saving voice time before exit", r)
			if err := l.Shutdown(time.Now()); err != nil {
				log.Printf("Error saving voice time: %v", err)
			}
			panic(r)
		}
	}()

	b, err := bot.New(cfg, l, m)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	if err := b.Start(ctx); err != nil {
		b.Stop()
		return fmt.Errorf("start bot: %w", err)
	}

	log.Println("Bot is now running. SIGINT, SIGTERM, or CTRL+C to exit.")
	<-ctx.Done()

	log.Println("Shutting down, saving voice time and cleaning up commands...")
	b.Stop()
	return nil
}
