// Command cyclarb runs the real-time cyclic arbitrage detector: websocket
// feeds in, detected opportunities out through the reporter, Slack, Redis,
// SQLite and the HTTP telemetry surface.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tradewatch/cyclarb/pkg/config"
	"github.com/tradewatch/cyclarb/pkg/engine"
	"github.com/tradewatch/cyclarb/pkg/notifier"
	"github.com/tradewatch/cyclarb/pkg/providers/websocket"
	"github.com/tradewatch/cyclarb/pkg/publisher"
	"github.com/tradewatch/cyclarb/pkg/recorder"
	"github.com/tradewatch/cyclarb/pkg/reporter"
	"github.com/tradewatch/cyclarb/pkg/server"
	"github.com/tradewatch/cyclarb/pkg/types"
)

var (
	configPath   = flag.String("config", "", "Path to configuration file (TOML)")
	outputFormat = flag.String("format", "text", "Report format: text, json, csv")
	verbose      = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("loading config failed")
		}
	} else {
		cfg = config.LoadFromEnv()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	eng := engine.New(cfg.ToEngineConfig())

	// Reporter is always attached.
	rep := reporter.NewReporter(os.Stdout, reporter.OutputFormat(*outputFormat), *verbose)
	eng.RegisterOpportunityCallback(rep.ReportOpportunity)

	// Slack notifications.
	slack := notifier.NewSlackNotifier(&notifier.SlackConfig{
		APIToken: cfg.Slack.APIToken,
		Channel:  cfg.Slack.Channel,
		Enabled:  cfg.Slack.Enabled,
	})
	if slack.IsEnabled() {
		if err := slack.SendTestMessage(); err != nil {
			log.Warn().Err(err).Msg("slack test message failed")
		}
		eng.RegisterOpportunityCallback(func(opp *types.Opportunity) {
			if err := slack.NotifyOpportunity(opp); err != nil {
				log.Warn().Err(err).Msg("slack notify failed")
			}
		})
	}

	// Redis publisher.
	if cfg.Redis.Enabled {
		pub, err := publisher.New(ctx, publisher.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis publisher failed")
		}
		defer pub.Close()
		eng.RegisterOpportunityCallback(pub.Callback())
	}

	// SQLite recorder.
	if cfg.Recorder.Enabled {
		rec, err := recorder.Open(cfg.Recorder.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("opening recorder failed")
		}
		defer rec.Close()
		eng.RegisterOpportunityCallback(rec.Callback())
	}

	eng.Start()
	defer eng.Stop()

	// Websocket feeds.
	pump := websocket.NewPump(eng)
	for _, ex := range cfg.GetEnabledExchanges() {
		switch ex.ID {
		case "binance":
			pump.AddProvider(websocket.NewBinanceWSProvider())
		case "coinbase":
			pump.AddProvider(websocket.NewCoinbaseWSProvider())
		case "kraken":
			pump.AddProvider(websocket.NewKrakenWSProvider())
		default:
			log.Warn().Str("exchange", ex.ID).Msg("no provider for exchange")
		}
	}

	pairs := make([]string, 0)
	for _, p := range cfg.GetEnabledPairs() {
		pairs = append(pairs, p.Pair)
	}
	if err := pump.Start(ctx, pairs); err != nil {
		log.Fatal().Err(err).Msg("starting feeds failed")
	}
	defer pump.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		srv := server.NewServer(server.Config{Port: cfg.Server.Port}, eng)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	// Periodic stats summary.
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stats := eng.GetPerformanceStats()
				admitted, dropped := pump.Counts()
				log.Info().
					Uint64("messages", stats.MessagesProcessed).
					Uint64("opportunities", stats.OpportunitiesFound).
					Float64("avg_latency_us", stats.AvgLatencyUs).
					Uint64("ticks_admitted", admitted).
					Uint64("ticks_dropped", dropped).
					Msg("engine stats")
				if *verbose {
					rep.ReportStats(stats)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("runtime error")
	}
}

// setupLogging configures the global zerolog level and console output.
func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
