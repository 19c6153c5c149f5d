package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // timezones for hosts without a zoneinfo database

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"wysibot/bot"
	"wysibot/config"
	"wysibot/dal"
	"wysibot/logging"
)

var (
	botToken = flag.String(
		"token",
		"",
		"Bot access token. Overrides DISCORD_TOKEN.",
	)
	guildID = flag.String(
		"guild",
		"",
		"Test guild ID. Overrides GUILD_ID. If neither is set, slash commands are registered globally.",
	)
	dbPath = flag.String(
		"dbPath",
		"",
		"SQLite database file path. Overrides DB_PATH.",
	)
)

func loadConfig() config.Config {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if *botToken != "" {
		cfg.Token = *botToken
	}
	if *guildID != "" {
		cfg.GuildID = *guildID
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	if cfg.Token == "" {
		fmt.Println("-token or DISCORD_TOKEN must be provided.")
		fmt.Println()
		flag.Usage()
		os.Exit(1)
	}
	return cfg
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics.")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics listener failed.")
	}
}

func main() {
	cfg := loadConfig()
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	db, err := dal.InitDB(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise database.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	b, err := bot.New(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start bot.")
	}
	defer b.Shutdown()

	b.Run(ctx)
}
